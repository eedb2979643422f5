package recurring

import (
	"time"

	"github.com/splitledger/splitledger/internal/models"
)

// advance moves t forward by one recurrence step.
func advance(t time.Time, unit models.RecurrenceUnit, interval int) time.Time {
	switch unit {
	case models.UnitDay:
		return t.AddDate(0, 0, interval)
	case models.UnitWeek:
		return t.AddDate(0, 0, 7*interval)
	case models.UnitMonth:
		return t.AddDate(0, interval, 0)
	case models.UnitYear:
		return t.AddDate(interval, 0, 0)
	}
	return t
}

// dueOccurrences returns the occurrences of tpl that are due at now and not
// yet materialized, oldest first, capped at max. Occurrences fall at
// StartDate, StartDate+step, StartDate+2*step, ...; everything at or before
// LastOccurrence has already been generated.
func dueOccurrences(tpl *models.RecurringExpense, now time.Time, max int) []time.Time {
	if !tpl.Unit.Valid() || tpl.Interval < 1 {
		return nil
	}

	occ := time.Unix(tpl.StartDate, 0).UTC()
	last := time.Unix(tpl.LastOccurrence, 0).UTC()
	var due []time.Time
	for !occ.After(now) && len(due) < max {
		if tpl.LastOccurrence == 0 || occ.After(last) {
			due = append(due, occ)
		}
		occ = advance(occ, tpl.Unit, tpl.Interval)
	}
	return due
}
