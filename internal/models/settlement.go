package models

import "github.com/shopspring/decimal"

// Settlement records a payment between group members that retires standing
// debt. It is the audit entry behind a settle-up: the ledger delta it caused
// can always be reconstructed from this row.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// GroupID is the group this settlement belongs to.
	GroupID string

	// FromUserID is the member who paid (debtor settling up).
	FromUserID string

	// ToUserID is the member who received payment.
	ToUserID string

	// Amount is the delta applied to the ledger, in Currency.
	Amount decimal.Decimal

	// Currency is the currency of the debt row the payment retired.
	Currency string

	// Note is an optional description for the settlement.
	Note string

	// CreatedAt is the unix timestamp when the settlement was recorded.
	CreatedAt int64
}
