package fx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fx_cache_hits_total",
		Help: "Rate lookups served from the cache.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fx_cache_misses_total",
		Help: "Rate lookups that required a provider fetch.",
	})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fx_fetch_failures_total",
		Help: "Provider fetches that failed or timed out.",
	})
	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fx_sweep_runs_total",
		Help: "Background refresh sweeps executed.",
	})
)
