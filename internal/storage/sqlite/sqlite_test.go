package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func inTx(t *testing.T, store *Store, fn func(tx storage.Tx) error) {
	t.Helper()
	if err := store.InTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestExpenseRoundTrip(t *testing.T) {
	store := newTestStore(t)

	expense := &models.Expense{
		GroupID:     "g1",
		PayerID:     "alice",
		Title:       "Groceries",
		Amount:      dec("42.50"),
		Currency:    "USD",
		Category:    "food",
		ExpenseDate: time.Now().Unix(),
	}
	inTx(t, store, func(tx storage.Tx) error {
		return tx.InsertExpense(expense)
	})
	if expense.ID == "" {
		t.Fatal("expected ID to be generated on insert")
	}
	if expense.CreatedAt == 0 {
		t.Fatal("expected CreatedAt to be stamped on insert")
	}

	var got *models.Expense
	inTx(t, store, func(tx storage.Tx) (err error) {
		got, err = tx.GetExpense(expense.ID)
		return err
	})
	if got.Title != "Groceries" || got.PayerID != "alice" {
		t.Errorf("got %+v, want inserted fields back", got)
	}
	if !got.Amount.Equal(dec("42.50")) {
		t.Errorf("amount = %s, want exact 42.50", got.Amount)
	}
}

func TestExpenseUpdate(t *testing.T) {
	store := newTestStore(t)

	expense := &models.Expense{GroupID: "g1", PayerID: "alice", Amount: dec("10.00"), Currency: "USD"}
	inTx(t, store, func(tx storage.Tx) error { return tx.InsertExpense(expense) })

	expense.PayerID = "bob"
	expense.Amount = dec("20.00")
	inTx(t, store, func(tx storage.Tx) error { return tx.UpdateExpense(expense) })

	var got *models.Expense
	inTx(t, store, func(tx storage.Tx) (err error) {
		got, err = tx.GetExpense(expense.ID)
		return err
	})
	if got.PayerID != "bob" || !got.Amount.Equal(dec("20.00")) {
		t.Errorf("got payer=%s amount=%s, want bob 20.00", got.PayerID, got.Amount)
	}
}

func TestExpenseSoftDelete(t *testing.T) {
	store := newTestStore(t)

	expense := &models.Expense{GroupID: "g1", PayerID: "alice", Amount: dec("10.00"), Currency: "USD"}
	inTx(t, store, func(tx storage.Tx) error { return tx.InsertExpense(expense) })
	inTx(t, store, func(tx storage.Tx) error { return tx.SoftDeleteExpense(expense.ID, time.Now().Unix()) })

	err := store.InTx(context.Background(), func(tx storage.Tx) error {
		_, err := tx.GetExpense(expense.ID)
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}

	// Deleting again finds no live row.
	err = store.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.SoftDeleteExpense(expense.ID, time.Now().Unix())
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestShares(t *testing.T) {
	store := newTestStore(t)

	expense := &models.Expense{GroupID: "g1", PayerID: "alice", Amount: dec("10.00"), Currency: "USD"}
	inTx(t, store, func(tx storage.Tx) error {
		if err := tx.InsertExpense(expense); err != nil {
			return err
		}
		return tx.InsertShares([]models.ExpenseShare{
			{ExpenseID: expense.ID, MemberID: "alice", Amount: dec("3.33")},
			{ExpenseID: expense.ID, MemberID: "bob", Amount: dec("3.33")},
			{ExpenseID: expense.ID, MemberID: "carol", Amount: dec("3.34")},
		})
	})

	var shares []models.ExpenseShare
	inTx(t, store, func(tx storage.Tx) (err error) {
		shares, err = tx.ActiveSharesByExpense(expense.ID)
		return err
	})
	if len(shares) != 3 {
		t.Fatalf("got %d shares, want 3", len(shares))
	}
	if shares[2].MemberID != "carol" || !shares[2].Amount.Equal(dec("3.34")) {
		t.Errorf("share 2 = %s/%s, want carol/3.34", shares[2].MemberID, shares[2].Amount)
	}

	inTx(t, store, func(tx storage.Tx) error {
		return tx.SoftDeleteShares(expense.ID, time.Now().Unix())
	})
	inTx(t, store, func(tx storage.Tx) (err error) {
		shares, err = tx.ActiveSharesByExpense(expense.ID)
		return err
	})
	if len(shares) != 0 {
		t.Errorf("got %d shares after soft delete, want 0", len(shares))
	}
}

func TestDebtRows(t *testing.T) {
	store := newTestStore(t)

	row := &models.GroupDebt{GroupID: "g1", LenderID: "alice", BorrowerID: "bob", Currency: "USD", Amount: decimal.Zero}
	inTx(t, store, func(tx storage.Tx) error { return tx.InsertDebtRow(row) })
	// Idempotent re-insert, same key.
	inTx(t, store, func(tx storage.Tx) error { return tx.InsertDebtRow(row) })

	inTx(t, store, func(tx storage.Tx) error {
		return tx.SetDebt("g1", "alice", "bob", "USD", dec("12.34"), time.Now().Unix())
	})

	var got decimal.Decimal
	inTx(t, store, func(tx storage.Tx) (err error) {
		got, err = tx.GetDebt("g1", "alice", "bob", "USD")
		return err
	})
	if !got.Equal(dec("12.34")) {
		t.Errorf("debt = %s, want 12.34", got)
	}

	t.Run("missing row", func(t *testing.T) {
		err := store.InTx(context.Background(), func(tx storage.Tx) error {
			_, err := tx.GetDebt("g1", "bob", "alice", "USD")
			return err
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("set on missing row", func(t *testing.T) {
		err := store.InTx(context.Background(), func(tx storage.Tx) error {
			return tx.SetDebt("g1", "bob", "carol", "USD", dec("1.00"), time.Now().Unix())
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("debts for user", func(t *testing.T) {
		var debts []models.GroupDebt
		inTx(t, store, func(tx storage.Tx) (err error) {
			debts, err = tx.ActiveDebtsForUser("g1", "bob")
			return err
		})
		if len(debts) != 1 {
			t.Fatalf("got %d debt rows, want 1", len(debts))
		}
		if debts[0].LenderID != "alice" || !debts[0].Amount.Equal(dec("12.34")) {
			t.Errorf("got %+v, want alice->bob 12.34", debts[0])
		}
	})
}

func TestSettlements(t *testing.T) {
	store := newTestStore(t)

	inTx(t, store, func(tx storage.Tx) error {
		return tx.InsertSettlement(&models.Settlement{
			GroupID:    "g1",
			FromUserID: "bob",
			ToUserID:   "alice",
			Amount:     dec("10.00"),
			Currency:   "USD",
			Note:       "venmo",
			CreatedAt:  100,
		})
	})
	inTx(t, store, func(tx storage.Tx) error {
		return tx.InsertSettlement(&models.Settlement{
			GroupID:    "g1",
			FromUserID: "carol",
			ToUserID:   "alice",
			Amount:     dec("5.00"),
			Currency:   "USD",
			CreatedAt:  200,
		})
	})

	var got []models.Settlement
	inTx(t, store, func(tx storage.Tx) (err error) {
		got, err = tx.SettlementsByGroup("g1")
		return err
	})
	if len(got) != 2 {
		t.Fatalf("got %d settlements, want 2", len(got))
	}
	// Newest first.
	if got[0].FromUserID != "carol" || got[1].Note != "venmo" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestRecurringRoundTrip(t *testing.T) {
	store := newTestStore(t)

	tpl := &models.RecurringExpense{
		GroupID:      "g1",
		PayerID:      "alice",
		Title:        "Rent",
		Amount:       dec("1500.00"),
		Currency:     "USD",
		Participants: []string{"alice", "bob", "carol"},
		Weights:      []int64{2, 1, 1},
		StartDate:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Unit:         models.UnitMonth,
		Interval:     1,
	}
	inTx(t, store, func(tx storage.Tx) error { return tx.InsertRecurring(tpl) })

	var got *models.RecurringExpense
	inTx(t, store, func(tx storage.Tx) (err error) {
		got, err = tx.GetRecurring(tpl.ID)
		return err
	})
	if got.Title != "Rent" || got.Unit != models.UnitMonth || got.Interval != 1 {
		t.Errorf("got %+v, want inserted fields back", got)
	}
	if len(got.Participants) != 3 || got.Participants[0] != "alice" {
		t.Errorf("participants = %v, want [alice bob carol] in order", got.Participants)
	}
	if len(got.Weights) != 3 || got.Weights[0] != 2 {
		t.Errorf("weights = %v, want [2 1 1]", got.Weights)
	}
}

func TestRecurringEqualSplitHasNilWeights(t *testing.T) {
	store := newTestStore(t)

	tpl := &models.RecurringExpense{
		GroupID:      "g1",
		PayerID:      "alice",
		Amount:       dec("100.00"),
		Currency:     "USD",
		Participants: []string{"alice", "bob"},
		StartDate:    time.Now().Unix(),
		Unit:         models.UnitWeek,
		Interval:     1,
	}
	inTx(t, store, func(tx storage.Tx) error { return tx.InsertRecurring(tpl) })

	var got *models.RecurringExpense
	inTx(t, store, func(tx storage.Tx) (err error) {
		got, err = tx.GetRecurring(tpl.ID)
		return err
	})
	if got.Weights != nil {
		t.Errorf("weights = %v, want nil for equal split", got.Weights)
	}
}

func TestRecurringLifecycle(t *testing.T) {
	store := newTestStore(t)

	tpl := &models.RecurringExpense{
		GroupID:      "g1",
		PayerID:      "alice",
		Amount:       dec("100.00"),
		Currency:     "USD",
		Participants: []string{"alice"},
		StartDate:    time.Now().Unix(),
		Unit:         models.UnitMonth,
		Interval:     1,
	}
	inTx(t, store, func(tx storage.Tx) error { return tx.InsertRecurring(tpl) })

	occ := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Unix()
	inTx(t, store, func(tx storage.Tx) error { return tx.SetLastOccurrence(tpl.ID, occ) })

	var active []models.RecurringExpense
	inTx(t, store, func(tx storage.Tx) (err error) {
		active, err = tx.ActiveRecurring()
		return err
	})
	if len(active) != 1 || active[0].LastOccurrence != occ {
		t.Fatalf("active = %+v, want one template with marker %d", active, occ)
	}

	inTx(t, store, func(tx storage.Tx) error {
		return tx.SoftDeleteRecurring(tpl.ID, time.Now().Unix())
	})
	inTx(t, store, func(tx storage.Tx) (err error) {
		active, err = tx.ActiveRecurring()
		return err
	})
	if len(active) != 0 {
		t.Errorf("got %d active templates after retirement, want 0", len(active))
	}

	// Marker updates on a retired template must not succeed.
	err := store.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.SetLastOccurrence(tpl.ID, occ+1)
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRollbackOnError(t *testing.T) {
	store := newTestStore(t)

	expense := &models.Expense{GroupID: "g1", PayerID: "alice", Amount: dec("10.00"), Currency: "USD"}
	sentinel := errors.New("abort")
	err := store.InTx(context.Background(), func(tx storage.Tx) error {
		if err := tx.InsertExpense(expense); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}

	err = store.InTx(context.Background(), func(tx storage.Tx) error {
		_, err := tx.GetExpense(expense.ID)
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expense survived rollback: err = %v, want ErrNotFound", err)
	}
}
