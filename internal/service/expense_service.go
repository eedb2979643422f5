// Package service wires the allocation engine, the debt ledger, and storage
// into the operations the surrounding API layer calls in-process.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/allocator"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// Converter converts a monetary amount between currencies. Implemented by
// the fx cache.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// ExpenseService implements expense lifecycle, settle-up, and balance
// queries over a storage backend. Every mutation runs in a single
// transaction: expense row, share rows, and ledger deltas commit together
// or not at all.
type ExpenseService struct {
	store storage.Store
	rates Converter
}

// NewExpenseService creates an ExpenseService.
func NewExpenseService(store storage.Store, rates Converter) *ExpenseService {
	return &ExpenseService{store: store, rates: rates}
}

// ExpenseInput carries the fields needed to create or replace an expense.
type ExpenseInput struct {
	GroupID      string
	PayerID      string
	Title        string
	Amount       decimal.Decimal
	Currency     string
	Category     string
	ExpenseDate  int64
	Participants []string

	// Shares optionally fixes each participant's portion. Nil or
	// length-mismatched shares mean an equal split.
	Shares []decimal.Decimal
}

// CreateExpense allocates the amount into shares, persists the expense and
// its shares, and applies the ledger deltas, all in one transaction.
func (s *ExpenseService) CreateExpense(ctx context.Context, in ExpenseInput) (*models.Expense, error) {
	shares, err := allocator.Allocate(in.Amount, in.Currency, in.Participants, in.Shares)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		GroupID:     in.GroupID,
		PayerID:     in.PayerID,
		Title:       in.Title,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Category:    in.Category,
		ExpenseDate: in.ExpenseDate,
	}
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		return insertAllocated(tx, expense, shares)
	})
	if err != nil {
		slog.Error("CreateExpense failed", "group_id", in.GroupID, "error", err)
		return nil, err
	}
	return expense, nil
}

// UpdateExpense replaces an expense's amount, currency, and participants.
// At the ledger level this is modeled as delete-then-create: the old shares
// are reversed before the new ones are applied, never diffed, so a
// re-allocation can never leave partial state behind.
func (s *ExpenseService) UpdateExpense(ctx context.Context, expenseID string, in ExpenseInput) (*models.Expense, error) {
	shares, err := allocator.Allocate(in.Amount, in.Currency, in.Participants, in.Shares)
	if err != nil {
		return nil, err
	}

	var updated *models.Expense
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		expense, err := tx.GetExpense(expenseID)
		if err != nil {
			return fmt.Errorf("get expense: %w", err)
		}

		if err := reverseShares(tx, expense); err != nil {
			return err
		}
		if err := tx.SoftDeleteShares(expenseID, time.Now().Unix()); err != nil {
			return fmt.Errorf("soft delete shares: %w", err)
		}

		expense.PayerID = in.PayerID
		expense.Title = in.Title
		expense.Amount = in.Amount
		expense.Currency = in.Currency
		expense.Category = in.Category
		expense.ExpenseDate = in.ExpenseDate
		if err := tx.UpdateExpense(expense); err != nil {
			return fmt.Errorf("update expense: %w", err)
		}

		if err := applyShares(tx, expense, shares); err != nil {
			return err
		}
		updated = expense
		return nil
	})
	if err != nil {
		slog.Error("UpdateExpense failed", "expense_id", expenseID, "error", err)
		return nil, err
	}
	return updated, nil
}

// DeleteExpense reverses the expense's ledger deltas and soft-deletes the
// expense and its shares. Rows are kept for the audit trail.
func (s *ExpenseService) DeleteExpense(ctx context.Context, expenseID string) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		expense, err := tx.GetExpense(expenseID)
		if err != nil {
			return fmt.Errorf("get expense: %w", err)
		}
		if err := reverseShares(tx, expense); err != nil {
			return err
		}
		now := time.Now().Unix()
		if err := tx.SoftDeleteShares(expenseID, now); err != nil {
			return fmt.Errorf("soft delete shares: %w", err)
		}
		if err := tx.SoftDeleteExpense(expenseID, now); err != nil {
			return fmt.Errorf("soft delete expense: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("DeleteExpense failed", "expense_id", expenseID, "error", err)
	}
	return err
}

// SettleInput describes a settle-up payment.
type SettleInput struct {
	GroupID    string
	FromUserID string
	ToUserID   string
	Amount     decimal.Decimal
	Currency   string

	// DebtCurrency names the debt row the payment retires. When it differs
	// from Currency the amount is converted through the rate cache; empty
	// means the payment currency.
	DebtCurrency string
	Note         string
}

// Settle applies a payment from FromUserID to ToUserID against their
// standing debt and records the settlement. The FX conversion, if any,
// happens before the transaction opens so no row lock is held across the
// provider call.
func (s *ExpenseService) Settle(ctx context.Context, in SettleInput) (*models.Settlement, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ledger.ErrInvalidAmount, in.Amount)
	}

	debtCurrency := in.DebtCurrency
	if debtCurrency == "" {
		debtCurrency = in.Currency
	}
	applied := in.Amount
	if debtCurrency != in.Currency {
		converted, err := s.rates.Convert(ctx, in.Amount, in.Currency, debtCurrency)
		if err != nil {
			return nil, err
		}
		applied = converted
	}

	var settlement *models.Settlement
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		settlement, err = ledger.Settle(tx, in.GroupID, in.FromUserID, in.ToUserID, applied, debtCurrency, in.Note)
		return err
	})
	if err != nil {
		slog.Error("Settle failed",
			"group_id", in.GroupID,
			"from", in.FromUserID,
			"to", in.ToUserID,
			"error", err,
		)
		return nil, err
	}
	return settlement, nil
}

// NetBalance returns the signed balance between two members in a currency:
// positive means userB owes userA.
func (s *ExpenseService) NetBalance(ctx context.Context, groupID, userA, userB, currency string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		balance, err = ledger.NetBalance(tx, groupID, userA, userB, currency)
		return err
	})
	return balance, err
}

// BalancesForUser returns the user's net position against every other group
// member, keyed by member ID then currency.
func (s *ExpenseService) BalancesForUser(ctx context.Context, groupID, userID string) (map[string]map[string]decimal.Decimal, error) {
	var balances map[string]map[string]decimal.Decimal
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		balances, err = ledger.AllBalancesForUser(tx, groupID, userID)
		return err
	})
	return balances, err
}

// ProvisionMember creates the zero-balance ledger rows between a new group
// member and the existing members for the given currencies. The membership
// layer (out of process here) must call this when a member joins; expense
// creation reports ErrLedgerRowMissing rather than provisioning lazily.
func (s *ExpenseService) ProvisionMember(ctx context.Context, groupID, memberID string, existing []string, currencies []string) error {
	return s.store.InTx(ctx, func(tx storage.Tx) error {
		return ledger.Provision(tx, groupID, memberID, existing, currencies)
	})
}

// insertAllocated persists an allocated expense: the expense row, one share
// row per participant, and one ledger delta per non-payer participant.
func insertAllocated(tx storage.Tx, expense *models.Expense, shares []allocator.Share) error {
	if err := tx.InsertExpense(expense); err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return applyShares(tx, expense, shares)
}

// applyShares applies new shares after an update: share rows plus deltas.
func applyShares(tx storage.Tx, expense *models.Expense, shares []allocator.Share) error {
	rows := make([]models.ExpenseShare, len(shares))
	for i, sh := range shares {
		rows[i] = models.ExpenseShare{
			ExpenseID: expense.ID,
			MemberID:  sh.MemberID,
			Amount:    sh.Amount,
		}
	}
	if err := tx.InsertShares(rows); err != nil {
		return fmt.Errorf("insert shares: %w", err)
	}
	return applyDeltas(tx, expense, shares)
}

func applyDeltas(tx storage.Tx, expense *models.Expense, shares []allocator.Share) error {
	for _, sh := range shares {
		if err := ledger.ApplyDelta(tx, expense.GroupID, expense.PayerID, sh.MemberID, sh.Amount, expense.Currency); err != nil {
			return err
		}
	}
	return nil
}

// reverseShares negates the expense's active share deltas against the
// ledger, undoing its effect before a delete or re-allocation.
func reverseShares(tx storage.Tx, expense *models.Expense) error {
	shares, err := tx.ActiveSharesByExpense(expense.ID)
	if err != nil {
		return fmt.Errorf("load shares: %w", err)
	}
	for _, sh := range shares {
		if err := ledger.ApplyDelta(tx, expense.GroupID, expense.PayerID, sh.MemberID, sh.Amount.Neg(), expense.Currency); err != nil {
			return err
		}
	}
	return nil
}
