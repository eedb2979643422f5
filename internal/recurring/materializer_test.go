package recurring

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
	"github.com/splitledger/splitledger/internal/storage/sqlite"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDueOccurrences(t *testing.T) {
	tpl := func(start time.Time, unit models.RecurrenceUnit, interval int, last int64) *models.RecurringExpense {
		return &models.RecurringExpense{
			StartDate:      start.Unix(),
			Unit:           unit,
			Interval:       interval,
			LastOccurrence: last,
		}
	}

	t.Run("start date in the future yields nothing", func(t *testing.T) {
		got := dueOccurrences(tpl(date(2026, 3, 1), models.UnitMonth, 1, 0), date(2026, 2, 1), 100)
		if len(got) != 0 {
			t.Fatalf("got %d occurrences, want 0", len(got))
		}
	})

	t.Run("start date itself is the first occurrence", func(t *testing.T) {
		got := dueOccurrences(tpl(date(2026, 2, 1), models.UnitMonth, 1, 0), date(2026, 2, 1), 100)
		if len(got) != 1 || !got[0].Equal(date(2026, 2, 1)) {
			t.Fatalf("got %v, want [2026-02-01]", got)
		}
	})

	t.Run("missed occurrences catch up oldest first", func(t *testing.T) {
		got := dueOccurrences(tpl(date(2026, 1, 1), models.UnitMonth, 1, 0), date(2026, 3, 15), 100)
		want := []time.Time{date(2026, 1, 1), date(2026, 2, 1), date(2026, 3, 1)}
		if len(got) != len(want) {
			t.Fatalf("got %d occurrences, want %d", len(got), len(want))
		}
		for i := range want {
			if !got[i].Equal(want[i]) {
				t.Errorf("occurrence %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("already materialized occurrences are skipped", func(t *testing.T) {
		last := date(2026, 2, 1).Unix()
		got := dueOccurrences(tpl(date(2026, 1, 1), models.UnitMonth, 1, last), date(2026, 3, 15), 100)
		if len(got) != 1 || !got[0].Equal(date(2026, 3, 1)) {
			t.Fatalf("got %v, want [2026-03-01]", got)
		}
	})

	t.Run("up to date template yields nothing", func(t *testing.T) {
		last := date(2026, 3, 1).Unix()
		got := dueOccurrences(tpl(date(2026, 1, 1), models.UnitMonth, 1, last), date(2026, 3, 15), 100)
		if len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})

	t.Run("weekly interval", func(t *testing.T) {
		got := dueOccurrences(tpl(date(2026, 1, 5), models.UnitWeek, 2, 0), date(2026, 2, 2), 100)
		want := []time.Time{date(2026, 1, 5), date(2026, 1, 19), date(2026, 2, 2)}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("catch-up is capped", func(t *testing.T) {
		got := dueOccurrences(tpl(date(2020, 1, 1), models.UnitDay, 1, 0), date(2026, 1, 1), 24)
		if len(got) != 24 {
			t.Fatalf("got %d occurrences, want capped at 24", len(got))
		}
	})

	t.Run("invalid unit yields nothing", func(t *testing.T) {
		got := dueOccurrences(tpl(date(2026, 1, 1), "fortnight", 1, 0), date(2026, 3, 1), 100)
		if len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})
}

// fakeRunner records materialized occurrences and advances the template
// marker the way the expense service does.
type fakeRunner struct {
	store storage.Store

	mu    sync.Mutex
	calls []string
	fail  bool
}

func (r *fakeRunner) MaterializeOccurrence(ctx context.Context, tpl *models.RecurringExpense, occ time.Time) (*models.Expense, error) {
	r.mu.Lock()
	fail := r.fail
	r.calls = append(r.calls, fmt.Sprintf("%s@%s", tpl.ID, occ.Format("2006-01-02")))
	r.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("boom")
	}
	err := r.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.SetLastOccurrence(tpl.ID, occ.Unix())
	})
	if err != nil {
		return nil, err
	}
	return &models.Expense{ID: "exp-" + tpl.ID, RecurringID: tpl.ID}, nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertTemplate(t *testing.T, store storage.Store, tpl *models.RecurringExpense) {
	t.Helper()
	err := store.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertRecurring(tpl)
	})
	if err != nil {
		t.Fatalf("failed to insert template: %v", err)
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	newTpl := func(id string, start time.Time) *models.RecurringExpense {
		return &models.RecurringExpense{
			ID:           id,
			GroupID:      "g1",
			PayerID:      "alice",
			Title:        "Rent",
			Amount:       decimal.RequireFromString("100.00"),
			Currency:     "USD",
			Participants: []string{"alice", "bob"},
			StartDate:    start.Unix(),
			Unit:         models.UnitMonth,
			Interval:     1,
		}
	}

	t.Run("repeated sweeps in one window fire once", func(t *testing.T) {
		store := newTestStore(t)
		runner := &fakeRunner{store: store}
		insertTemplate(t, store, newTpl("tpl1", date(2026, 2, 1)))

		m := NewMaterializer(store, runner, time.Hour)
		m.now = func() time.Time { return date(2026, 2, 1).Add(3 * time.Hour) }

		m.Sweep(ctx)
		m.Sweep(ctx)
		m.Sweep(ctx)

		if got := runner.callCount(); got != 1 {
			t.Errorf("materialize calls = %d, want 1", got)
		}
	})

	t.Run("missed windows catch up on the next sweep", func(t *testing.T) {
		store := newTestStore(t)
		runner := &fakeRunner{store: store}
		insertTemplate(t, store, newTpl("tpl1", date(2026, 1, 1)))

		m := NewMaterializer(store, runner, time.Hour)
		m.now = func() time.Time { return date(2026, 3, 15) }
		m.Sweep(ctx)

		if got := runner.callCount(); got != 3 {
			t.Errorf("materialize calls = %d, want 3 (Jan, Feb, Mar)", got)
		}
	})

	t.Run("advances on subsequent windows", func(t *testing.T) {
		store := newTestStore(t)
		runner := &fakeRunner{store: store}
		insertTemplate(t, store, newTpl("tpl1", date(2026, 2, 1)))

		m := NewMaterializer(store, runner, time.Hour)
		m.now = func() time.Time { return date(2026, 2, 1) }
		m.Sweep(ctx)
		m.now = func() time.Time { return date(2026, 3, 1) }
		m.Sweep(ctx)

		if got := runner.callCount(); got != 2 {
			t.Errorf("materialize calls = %d, want 2", got)
		}
	})

	t.Run("one failing template does not abort the sweep", func(t *testing.T) {
		store := newTestStore(t)
		failing := &fakeRunner{store: store, fail: true}
		insertTemplate(t, store, newTpl("tpl1", date(2026, 2, 1)))
		insertTemplate(t, store, newTpl("tpl2", date(2026, 2, 1)))

		m := NewMaterializer(store, failing, time.Hour)
		m.now = func() time.Time { return date(2026, 2, 2) }
		m.Sweep(ctx)

		// Both templates were attempted despite every call failing.
		if got := failing.callCount(); got != 2 {
			t.Errorf("materialize calls = %d, want 2", got)
		}
	})

	t.Run("failed template resumes next sweep", func(t *testing.T) {
		store := newTestStore(t)
		runner := &fakeRunner{store: store, fail: true}
		insertTemplate(t, store, newTpl("tpl1", date(2026, 2, 1)))

		m := NewMaterializer(store, runner, time.Hour)
		m.now = func() time.Time { return date(2026, 2, 2) }
		m.Sweep(ctx)

		runner.mu.Lock()
		runner.fail = false
		runner.mu.Unlock()
		m.Sweep(ctx)

		// First sweep failed, marker never advanced, second sweep retried.
		if got := runner.callCount(); got != 2 {
			t.Errorf("materialize calls = %d, want 2", got)
		}
	})

	t.Run("retired templates never fire", func(t *testing.T) {
		store := newTestStore(t)
		runner := &fakeRunner{store: store}
		insertTemplate(t, store, newTpl("tpl1", date(2026, 2, 1)))
		err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.SoftDeleteRecurring("tpl1", date(2026, 2, 1).Unix())
		})
		if err != nil {
			t.Fatalf("failed to retire template: %v", err)
		}

		m := NewMaterializer(store, runner, time.Hour)
		m.now = func() time.Time { return date(2026, 3, 1) }
		m.Sweep(ctx)

		if got := runner.callCount(); got != 0 {
			t.Errorf("materialize calls = %d, want 0", got)
		}
	})
}
