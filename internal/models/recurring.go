package models

import "github.com/shopspring/decimal"

// RecurrenceUnit is the unit a recurring expense advances by.
type RecurrenceUnit string

const (
	UnitDay   RecurrenceUnit = "day"
	UnitWeek  RecurrenceUnit = "week"
	UnitMonth RecurrenceUnit = "month"
	UnitYear  RecurrenceUnit = "year"
)

// Valid reports whether the unit is one of the known recurrence units.
func (u RecurrenceUnit) Valid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// RecurringExpense is a template the materializer turns into concrete
// Expense rows on a schedule. The scheduler treats the template as
// read-only except for LastOccurrence, which it advances in the same
// transaction that inserts each generated expense.
type RecurringExpense struct {
	// ID is the unique identifier for the template (UUID format).
	ID string

	// GroupID is the owning group.
	GroupID string

	// PayerID is the member who pays each occurrence.
	PayerID string

	// Title is copied onto each generated expense.
	Title string

	// Amount is the total of each occurrence, exact to two decimals.
	Amount decimal.Decimal

	// Currency is the ISO 4217 code of Amount.
	Currency string

	// Category is copied onto each generated expense.
	Category string

	// Participants are the members each occurrence is split among.
	Participants []string

	// Weights are optional per-participant share weights, parallel to
	// Participants. Empty or mismatched weights mean an equal split.
	Weights []int64

	// StartDate is the unix timestamp of the first occurrence.
	StartDate int64

	// Unit is the recurrence unit (day, week, month, year).
	Unit RecurrenceUnit

	// Interval is how many units separate consecutive occurrences (>= 1).
	Interval int

	// LastOccurrence is the unix timestamp of the most recently
	// materialized occurrence, 0 if none has been generated yet. This is
	// what makes generation exactly-once regardless of tick timing.
	LastOccurrence int64

	// CreatedAt is the unix timestamp when the template was created.
	CreatedAt int64

	// DeletedAt is the unix timestamp of soft deletion, 0 if active.
	// A soft-deleted template is retired: it never fires again.
	DeletedAt int64
}

// Active reports whether the template has not been retired.
func (r *RecurringExpense) Active() bool { return r.DeletedAt == 0 }
