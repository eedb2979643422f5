package models

import "github.com/shopspring/decimal"

// GroupDebt is a persisted pairwise balance: how much the borrower owes the
// lender within a group, in one currency.
//
// The ledger keeps these rows canonicalized: for any member pair and
// currency, at most one direction ever holds a positive amount. Rows are
// created when a member joins a group and are never hard-deleted; their
// amounts are driven to zero and the row soft-deleted when a member leaves.
type GroupDebt struct {
	// GroupID is the group this balance belongs to.
	GroupID string

	// LenderID is the member who is owed.
	LenderID string

	// BorrowerID is the member who owes.
	BorrowerID string

	// Currency is the ISO 4217 code the balance is tracked in.
	Currency string

	// Amount is the non-negative amount the borrower owes the lender.
	Amount decimal.Decimal

	// UpdatedAt is the unix timestamp of the last mutation.
	UpdatedAt int64

	// DeletedAt is the unix timestamp of soft deletion, 0 if active.
	// Written by the membership layer on member departure; the ledger only
	// filters on it.
	DeletedAt int64
}
