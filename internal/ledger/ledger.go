// Package ledger maintains canonicalized pairwise debt balances per group
// and currency.
//
// Every balance is stored as a pair of directed rows, debt(A,B) and
// debt(B,A), of which at most one is ever positive. ApplyDelta folds signed
// share deltas into that representation and re-nets opposing entries on
// every mutation, so the single-direction invariant holds after each write.
//
// All functions operate inside a storage.Tx supplied by the caller: the
// expense service composes allocation, share persistence, and ledger deltas
// into one atomic transaction.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

var (
	// ErrLedgerRowMissing is returned when a debt row for an expected
	// member pair does not exist. Rows are provisioned when a member joins
	// a group; their absence indicates a membership-lifecycle bug upstream,
	// so the ledger reports it instead of creating rows silently.
	ErrLedgerRowMissing = errors.New("ledger: debt row missing for member pair")

	// ErrOverpayment is returned when a settlement exceeds the outstanding
	// debt. Settle-up never creates a reverse debt.
	ErrOverpayment = errors.New("ledger: payment exceeds outstanding debt")

	// ErrInvalidAmount is returned when a settlement amount is not positive.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// ApplyDelta folds a signed delta into the pairwise balance between payer
// and member: a positive amount means member owes payer that much more, a
// negative amount reverses previously applied debt. Opposing directions are
// netted immediately so only one side ever stays positive.
//
// Deltas for the payer's own share are no-ops, as are zero deltas.
func ApplyDelta(tx storage.Tx, groupID, payerID, memberID string, amount decimal.Decimal, currency string) error {
	if payerID == memberID || amount.IsZero() {
		return nil
	}

	// Read both directions in lender-ID order so concurrent mutations of
	// the same pair acquire row locks in the same order (no deadlocks on
	// backends that lock on read).
	first, second := payerID, memberID
	if second < first {
		first, second = second, first
	}
	fwd, err := getDebt(tx, groupID, first, second, currency)
	if err != nil {
		return err
	}
	rev, err := getDebt(tx, groupID, second, first, currency)
	if err != nil {
		return err
	}

	// Net balance in the payer→member direction.
	net := fwd.Sub(rev)
	if first != payerID {
		net = net.Neg()
	}
	net = net.Add(amount)

	toLender, toBorrower := decimal.Zero, decimal.Zero
	if net.IsPositive() {
		toLender = net
	} else {
		toBorrower = net.Neg()
	}
	now := time.Now().Unix()
	if err := tx.SetDebt(groupID, payerID, memberID, currency, toLender, now); err != nil {
		return fmt.Errorf("set debt %s->%s: %w", payerID, memberID, err)
	}
	if err := tx.SetDebt(groupID, memberID, payerID, currency, toBorrower, now); err != nil {
		return fmt.Errorf("set debt %s->%s: %w", memberID, payerID, err)
	}
	return nil
}

// NetBalance returns the signed balance between two members: positive means
// userB owes userA.
func NetBalance(tx storage.Tx, groupID, userA, userB, currency string) (decimal.Decimal, error) {
	// Same sorted read order as ApplyDelta: on backends that lock on read,
	// every transaction touching a pair must acquire its two row locks in
	// the same order.
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}
	fwd, err := getDebt(tx, groupID, first, second, currency)
	if err != nil {
		return decimal.Zero, err
	}
	rev, err := getDebt(tx, groupID, second, first, currency)
	if err != nil {
		return decimal.Zero, err
	}

	net := fwd.Sub(rev)
	if first != userA {
		net = net.Neg()
	}
	return net, nil
}

// AllBalancesForUser returns the user's net position against every other
// member of the group, keyed by member ID then currency. Positive means the
// other member owes the user. Members with a zero net in a currency are
// omitted.
func AllBalancesForUser(tx storage.Tx, groupID, userID string) (map[string]map[string]decimal.Decimal, error) {
	rows, err := tx.ActiveDebtsForUser(groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("list debts for user: %w", err)
	}

	out := make(map[string]map[string]decimal.Decimal)
	add := func(other, currency string, amount decimal.Decimal) {
		if out[other] == nil {
			out[other] = make(map[string]decimal.Decimal)
		}
		out[other][currency] = out[other][currency].Add(amount)
	}
	for _, row := range rows {
		if row.Amount.IsZero() {
			continue
		}
		switch userID {
		case row.LenderID:
			add(row.BorrowerID, row.Currency, row.Amount)
		case row.BorrowerID:
			add(row.LenderID, row.Currency, row.Amount.Neg())
		}
	}
	for other, byCurrency := range out {
		for currency, amount := range byCurrency {
			if amount.IsZero() {
				delete(byCurrency, currency)
			}
		}
		if len(byCurrency) == 0 {
			delete(out, other)
		}
	}
	return out, nil
}

// Settle applies a payment from fromUserID to toUserID against their
// standing debt in the given currency and records the settlement audit row.
// The amount must already be denominated in the debt's currency; cross
// currency conversion happens before the transaction opens (the ledger
// never calls out to the rate provider while holding row locks).
//
// Settle is deliberately not idempotent: two identical calls are two
// payments. Callers that retry must dedupe at the transport layer.
func Settle(tx storage.Tx, groupID, fromUserID, toUserID string, amount decimal.Decimal, currency, note string) (*models.Settlement, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}

	// Positive means fromUser owes toUser.
	owed, err := NetBalance(tx, groupID, toUserID, fromUserID, currency)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(owed) {
		return nil, fmt.Errorf("%w: owed %s %s, paying %s", ErrOverpayment, owed, currency, amount)
	}

	if err := ApplyDelta(tx, groupID, toUserID, fromUserID, amount.Neg(), currency); err != nil {
		return nil, err
	}

	s := &models.Settlement{
		GroupID:    groupID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Amount:     amount,
		Currency:   currency,
		Note:       note,
	}
	if err := tx.InsertSettlement(s); err != nil {
		return nil, fmt.Errorf("insert settlement: %w", err)
	}
	return s, nil
}

// Provision creates zero-balance debt rows in both directions between the
// new member and every existing member, for each currency the group tracks.
// It is idempotent: existing rows are left untouched. The surrounding
// membership layer calls this when a member joins; the ledger itself never
// creates rows lazily.
func Provision(tx storage.Tx, groupID, memberID string, existing []string, currencies []string) error {
	for _, other := range existing {
		if other == memberID {
			continue
		}
		for _, currency := range currencies {
			for _, pair := range [][2]string{{memberID, other}, {other, memberID}} {
				row := &models.GroupDebt{
					GroupID:    groupID,
					LenderID:   pair[0],
					BorrowerID: pair[1],
					Currency:   currency,
					Amount:     decimal.Zero,
				}
				if err := tx.InsertDebtRow(row); err != nil {
					return fmt.Errorf("provision %s->%s %s: %w", pair[0], pair[1], currency, err)
				}
			}
		}
	}
	return nil
}

func getDebt(tx storage.Tx, groupID, lenderID, borrowerID, currency string) (decimal.Decimal, error) {
	amount, err := tx.GetDebt(groupID, lenderID, borrowerID, currency)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("%w: group %s pair %s->%s currency %s",
			ErrLedgerRowMissing, groupID, lenderID, borrowerID, currency)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get debt %s->%s: %w", lenderID, borrowerID, err)
	}
	return amount, nil
}
