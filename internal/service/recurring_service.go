package service

import (
	"context"
	"fmt"
	"time"

	"github.com/splitledger/splitledger/internal/allocator"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// CreateRecurring validates and stores a recurring-expense template. The
// template itself never touches the ledger; only its materialized
// occurrences do.
func (s *ExpenseService) CreateRecurring(ctx context.Context, tpl *models.RecurringExpense) error {
	if len(tpl.Participants) == 0 {
		return allocator.ErrEmptyParticipants
	}
	if !tpl.Amount.IsPositive() {
		return fmt.Errorf("%w: got %s", allocator.ErrInvalidAmount, tpl.Amount)
	}
	if !tpl.Unit.Valid() {
		return fmt.Errorf("invalid recurrence unit %q", tpl.Unit)
	}
	if tpl.Interval < 1 {
		return fmt.Errorf("recurrence interval must be >= 1, got %d", tpl.Interval)
	}
	return s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRecurring(tpl)
	})
}

// RetireRecurring soft-deletes a template so it never fires again.
func (s *ExpenseService) RetireRecurring(ctx context.Context, templateID string) error {
	return s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.SoftDeleteRecurring(templateID, time.Now().Unix())
	})
}

// MaterializeOccurrence generates one expense from a template occurrence
// through the same allocation and ledger path as CreateExpense, and
// advances the template's last-occurrence marker in the same transaction.
// Committing both together is what makes generation exactly-once: a crash
// between the two can never happen, and a retried occurrence is filtered
// out by the marker.
func (s *ExpenseService) MaterializeOccurrence(ctx context.Context, tpl *models.RecurringExpense, occurrence time.Time) (*models.Expense, error) {
	var shares []allocator.Share
	var err error
	if len(tpl.Weights) == len(tpl.Participants) && len(tpl.Weights) > 0 {
		shares, err = allocator.AllocateWeighted(tpl.Amount, tpl.Currency, tpl.Participants, tpl.Weights)
	} else {
		shares, err = allocator.Allocate(tpl.Amount, tpl.Currency, tpl.Participants, nil)
	}
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		GroupID:     tpl.GroupID,
		PayerID:     tpl.PayerID,
		Title:       tpl.Title,
		Amount:      tpl.Amount,
		Currency:    tpl.Currency,
		Category:    tpl.Category,
		ExpenseDate: occurrence.Unix(),
		RecurringID: tpl.ID,
	}
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetRecurring(tpl.ID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		// Re-check under the transaction: another sweep may have advanced
		// the marker, or the template may have been retired since listing.
		if !current.Active() {
			return fmt.Errorf("template %s retired", tpl.ID)
		}
		if current.LastOccurrence >= occurrence.Unix() {
			return fmt.Errorf("occurrence %d already materialized for template %s", occurrence.Unix(), tpl.ID)
		}
		if err := insertAllocated(tx, expense, shares); err != nil {
			return err
		}
		return tx.SetLastOccurrence(tpl.ID, occurrence.Unix())
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}
