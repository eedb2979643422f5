// Package recurring materializes recurring-expense templates into concrete
// expenses on a schedule.
//
// Generation is exactly-once per occurrence regardless of tick timing: each
// template persists the timestamp of its last materialized occurrence, and
// a sweep generates every occurrence between that and now. Missed ticks
// (service downtime) are caught up on the next sweep; extra ticks inside
// one window are no-ops.
package recurring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// DefaultSweepInterval is how often the materializer scans templates.
// Daily occurrences are the finest grain, so a few sweeps per day is ample.
const DefaultSweepInterval = 6 * time.Hour

// defaultMaxCatchUp caps how many missed occurrences a single sweep
// generates per template, so a template created with a start date years in
// the past cannot flood a group in one run. The remainder is picked up by
// subsequent sweeps.
const defaultMaxCatchUp = 24

var (
	materialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurring_expenses_materialized_total",
		Help: "Expenses generated from recurring templates.",
	})
	materializeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurring_materialize_failures_total",
		Help: "Template occurrences that failed to materialize.",
	})
)

// TemplateRunner creates one expense from a template occurrence and
// advances the template's last-occurrence marker in the same transaction.
// Implemented by the expense service so generated expenses take the exact
// allocation and ledger path the API layer uses.
type TemplateRunner interface {
	MaterializeOccurrence(ctx context.Context, tpl *models.RecurringExpense, occurrence time.Time) (*models.Expense, error)
}

// Materializer sweeps active templates on a fixed tick.
type Materializer struct {
	store      storage.Store
	runner     TemplateRunner
	interval   time.Duration
	now        func() time.Time
	maxCatchUp int
}

// NewMaterializer creates a materializer. A non-positive interval falls
// back to DefaultSweepInterval.
func NewMaterializer(store storage.Store, runner TemplateRunner, interval time.Duration) *Materializer {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Materializer{
		store:      store,
		runner:     runner,
		interval:   interval,
		now:        time.Now,
		maxCatchUp: defaultMaxCatchUp,
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (m *Materializer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("recurring materializer stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep generates every due occurrence of every active template.
// Per-template failures are logged and counted; they never abort the sweep
// for other templates, and a failed template resumes where it left off on
// the next sweep because its last-occurrence marker did not advance.
func (m *Materializer) Sweep(ctx context.Context) {
	var templates []models.RecurringExpense
	err := m.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		templates, err = tx.ActiveRecurring()
		return err
	})
	if err != nil {
		slog.Error("recurring sweep: failed to list templates", "error", err)
		return
	}

	now := m.now().UTC()
	for i := range templates {
		tpl := &templates[i]
		due := dueOccurrences(tpl, now, m.maxCatchUp)
		for _, occ := range due {
			expense, err := m.runner.MaterializeOccurrence(ctx, tpl, occ)
			if err != nil {
				materializeFailures.Inc()
				slog.Error("recurring sweep: materialize failed",
					"template_id", tpl.ID,
					"occurrence", occ.Unix(),
					"error", err,
				)
				break // resume this template next sweep
			}
			materialized.Inc()
			slog.Info("materialized recurring expense",
				"template_id", tpl.ID,
				"expense_id", expense.ID,
				"occurrence", occ.Unix(),
			)
		}
	}
}
