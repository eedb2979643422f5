// Package allocator splits an expense amount into exact per-member shares.
//
// All computation is pure: callers persist the resulting shares and feed the
// deltas to the ledger. Rounding is half-up to two decimal places (currency
// minor units) everywhere, and the shares of a successful allocation always
// sum to the total exactly — the last participant absorbs any rounding
// remainder.
package allocator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyParticipants is returned when there is nobody to split among.
	ErrEmptyParticipants = errors.New("allocator: participant list is empty")

	// ErrInvalidAmount is returned when the total is zero or negative.
	ErrInvalidAmount = errors.New("allocator: total amount must be positive")

	// ErrAllocationMismatch is returned when explicit shares do not sum to
	// the total within half a minor unit.
	ErrAllocationMismatch = errors.New("allocator: shares do not sum to total")
)

// halfMinorUnit is the tolerance for explicit share validation: anything
// off by half a cent or more cannot be reconciled by rounding.
var halfMinorUnit = decimal.New(5, -3) // 0.005

// Share is one member's portion of an expense total.
type Share struct {
	MemberID string
	Amount   decimal.Decimal
}

// Allocate splits total among participants and returns one share per
// participant, in participant order.
//
// If shares is nil or its length does not match participants, the total is
// divided equally: every participant gets the half-up rounded quotient and
// the last participant absorbs the rounding remainder so the shares sum to
// total exactly. If shares matches in length it is used verbatim, after
// validating that it sums to total within half a minor unit.
func Allocate(total decimal.Decimal, currency string, participants []string, shares []decimal.Decimal) ([]Share, error) {
	if len(participants) == 0 {
		return nil, ErrEmptyParticipants
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, total)
	}
	if currency == "" {
		return nil, fmt.Errorf("allocator: currency is required")
	}

	if len(shares) == len(participants) && len(shares) > 0 {
		return explicit(total, participants, shares)
	}
	return equal(total, participants), nil
}

// AllocateWeighted splits total proportionally to integer weights. Weights
// must be positive and parallel to participants; the last participant
// absorbs the rounding remainder. Used by recurring templates that carry
// share weights.
func AllocateWeighted(total decimal.Decimal, currency string, participants []string, weights []int64) ([]Share, error) {
	if len(participants) == 0 {
		return nil, ErrEmptyParticipants
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, total)
	}
	if len(weights) != len(participants) {
		return Allocate(total, currency, participants, nil)
	}

	var sum int64
	for _, w := range weights {
		if w <= 0 {
			return nil, fmt.Errorf("allocator: weights must be positive, got %d", w)
		}
		sum += w
	}

	out := make([]Share, len(participants))
	remaining := total
	weightSum := decimal.NewFromInt(sum)
	for i, p := range participants {
		var amt decimal.Decimal
		if i == len(participants)-1 {
			amt = remaining
		} else {
			amt = total.Mul(decimal.NewFromInt(weights[i])).Div(weightSum).Round(2)
			remaining = remaining.Sub(amt)
		}
		out[i] = Share{MemberID: p, Amount: amt}
	}
	return out, nil
}

func equal(total decimal.Decimal, participants []string) []Share {
	n := len(participants)
	per := total.Div(decimal.NewFromInt(int64(n))).Round(2)

	out := make([]Share, n)
	for i, p := range participants {
		out[i] = Share{MemberID: p, Amount: per}
	}
	// Last participant absorbs the remainder so shares sum to total exactly.
	out[n-1].Amount = total.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))
	return out
}

func explicit(total decimal.Decimal, participants []string, shares []decimal.Decimal) ([]Share, error) {
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	if sum.Sub(total).Abs().Cmp(halfMinorUnit) >= 0 {
		return nil, fmt.Errorf("%w: shares sum to %s, total is %s", ErrAllocationMismatch, sum, total)
	}

	out := make([]Share, len(participants))
	remaining := total
	for i, p := range participants {
		amt := shares[i].Round(2)
		if i == len(participants)-1 {
			// Fold any sub-cent residue into the last share so the
			// allocation foots exactly.
			amt = remaining
		} else {
			remaining = remaining.Sub(amt)
		}
		out[i] = Share{MemberID: p, Amount: amt}
	}
	return out, nil
}
