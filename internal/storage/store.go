// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/models"
)

// ErrNotFound is returned when a requested row does not exist or has been
// soft-deleted.
var ErrNotFound = errors.New("storage: not found")

// Store defines the interface for ledger storage backends. Implementations
// exist for SQLite and Postgres; the service layer never touches SQL
// directly.
type Store interface {
	// InTx runs fn inside a single transaction. The transaction commits if
	// fn returns nil and rolls back otherwise, so a partially applied
	// allocation (shares written, ledger not updated) can never be
	// observed. Mutations of a group's debt rows are serialized by the
	// backend (single-writer in SQLite, row locks in Postgres).
	InTx(ctx context.Context, fn func(Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of row operations available inside a transaction.
// Implementations populate ID and CreatedAt on insert when unset.
type Tx interface {
	// Expenses.
	InsertExpense(e *models.Expense) error
	GetExpense(id string) (*models.Expense, error)
	UpdateExpense(e *models.Expense) error
	SoftDeleteExpense(id string, at int64) error

	// Expense shares.
	InsertShares(shares []models.ExpenseShare) error
	ActiveSharesByExpense(expenseID string) ([]models.ExpenseShare, error)
	SoftDeleteShares(expenseID string, at int64) error

	// Ledger rows. GetDebt returns ErrNotFound when the pair row was never
	// provisioned; InsertDebtRow is a no-op when the row already exists.
	GetDebt(groupID, lenderID, borrowerID, currency string) (decimal.Decimal, error)
	SetDebt(groupID, lenderID, borrowerID, currency string, amount decimal.Decimal, at int64) error
	InsertDebtRow(d *models.GroupDebt) error
	ActiveDebtsForUser(groupID, userID string) ([]models.GroupDebt, error)

	// Settlements.
	InsertSettlement(s *models.Settlement) error
	SettlementsByGroup(groupID string) ([]models.Settlement, error)

	// Recurring templates.
	InsertRecurring(r *models.RecurringExpense) error
	GetRecurring(id string) (*models.RecurringExpense, error)
	ActiveRecurring() ([]models.RecurringExpense, error)
	SetLastOccurrence(id string, occurrence int64) error
	SoftDeleteRecurring(id string, at int64) error
}
