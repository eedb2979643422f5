// Package models defines the core domain models for the expense ledger.
//
// All monetary amounts are decimal.Decimal values with two fractional
// digits; floats are never used for money. Records carry a DeletedAt unix
// timestamp (0 = active) instead of being hard-deleted, so the ledger's
// audit trail survives expense deletion.
//
// Relationships are expressed as ID strings rather than pointers to avoid
// circular references between expenses, shares, and debt rows.
package models
