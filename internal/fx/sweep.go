package fx

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval keeps tracked rates comfortably inside the TTL
// window even if a couple of sweeps fail in a row.
const DefaultSweepInterval = time.Hour

// Sweeper proactively refreshes the cache's tracked pairs on a fixed tick
// so foreground requests rarely pay fetch latency.
type Sweeper struct {
	cache    *Cache
	interval time.Duration
}

// NewSweeper creates a sweeper over the cache. A non-positive interval
// falls back to DefaultSweepInterval.
func NewSweeper(cache *Cache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{cache: cache, interval: interval}
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
// Individual pair failures are logged inside RefreshTracked and retried on
// the next tick; they never propagate to in-flight foreground calls.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("fx sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepRuns.Inc()
	start := time.Now()
	s.cache.RefreshTracked(ctx)
	slog.Debug("fx sweep completed", "duration_ms", time.Since(start).Milliseconds())
}
