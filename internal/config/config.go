// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds everything the server binary needs to wire the engine.
type Config struct {
	// DBDriver selects the storage backend: "sqlite" or "postgres".
	DBDriver string

	// DBSource is the SQLite file path or the Postgres DSN.
	DBSource string

	// Port is the HTTP port for /healthz and /metrics.
	Port string

	// FXBaseURL is the exchange-rate provider's base URL.
	FXBaseURL string

	// FXFetchTimeout bounds a single provider call.
	FXFetchTimeout time.Duration

	// FXTTL is how long a cached rate stays valid.
	FXTTL time.Duration

	// FXSweepInterval is how often the background refresh runs.
	FXSweepInterval time.Duration

	// FXSeedPairs are "FROM:TO" pairs the sweep keeps warm from startup.
	FXSeedPairs [][2]string

	// RecurringSweepInterval is how often the materializer scans templates.
	RecurringSweepInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults
// for everything except the FX provider URL.
func Load() (*Config, error) {
	cfg := &Config{
		DBDriver:  getEnv("DB_DRIVER", "sqlite"),
		DBSource:  getEnv("DB_SOURCE", "./data/ledger.db"),
		Port:      getEnv("SERVER_PORT", "8080"),
		FXBaseURL: os.Getenv("FX_BASE_URL"),
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if cfg.FXBaseURL == "" {
		return nil, fmt.Errorf("FX_BASE_URL environment variable is required")
	}

	var err error
	if cfg.FXFetchTimeout, err = getDuration("FX_FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FXTTL, err = getDuration("FX_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.FXSweepInterval, err = getDuration("FX_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RecurringSweepInterval, err = getDuration("RECURRING_SWEEP_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}

	for _, pair := range strings.Split(os.Getenv("FX_SEED_PAIRS"), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("FX_SEED_PAIRS entry %q must be FROM:TO", pair)
		}
		cfg.FXSeedPairs = append(cfg.FXSeedPairs, [2]string{parts[0], parts[1]})
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
