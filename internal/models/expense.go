package models

import "github.com/shopspring/decimal"

// Expense represents a single shared expense paid by one group member.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group this expense belongs to.
	GroupID string

	// PayerID is the member who paid the full amount.
	PayerID string

	// Title is the human-readable name for the expense.
	Title string

	// Amount is the total expense amount, exact to two decimal places.
	Amount decimal.Decimal

	// Currency is the ISO 4217 code the amount is denominated in.
	Currency string

	// Category is a free-form expense category (e.g. "food", "rent").
	Category string

	// ExpenseDate is the unix timestamp the expense occurred at.
	ExpenseDate int64

	// RecurringID links a materialized occurrence back to its template.
	// Empty for expenses created directly.
	RecurringID string

	// CreatedAt is the unix timestamp when the expense was recorded.
	CreatedAt int64

	// DeletedAt is the unix timestamp of soft deletion, 0 if active.
	DeletedAt int64
}

// Active reports whether the expense has not been soft-deleted.
func (e *Expense) Active() bool { return e.DeletedAt == 0 }

// ExpenseShare is one member's signed portion of an expense's total,
// denominated in the expense's currency. Shares are replaced wholesale when
// the parent expense is updated and soft-deleted alongside it.
type ExpenseShare struct {
	// ID is the unique identifier for the share (UUID format).
	ID string

	// ExpenseID is the parent expense.
	ExpenseID string

	// MemberID is the member this share belongs to.
	MemberID string

	// Amount is the member's signed share of the expense amount.
	Amount decimal.Decimal

	// CreatedAt is the unix timestamp when the share was recorded.
	CreatedAt int64

	// DeletedAt is the unix timestamp of soft deletion, 0 if active.
	DeletedAt int64
}
