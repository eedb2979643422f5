// Package fx provides currency conversion backed by a TTL cache over an
// external exchange-rate provider.
//
// Foreground lookups hit the cache and only fetch synchronously on a miss;
// a background sweep (see Sweeper) refreshes tracked pairs before they
// expire so misses stay rare. Writers use last-writer-wins upserts: any
// valid recent rate is equally correct inside the TTL window.
package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTTL is how long a fetched rate stays valid.
const DefaultTTL = 6 * time.Hour

// ErrRateUnavailable is returned when the provider cannot supply a rate and
// no fresh cached value exists. The cache never silently substitutes a
// stale or default rate.
var ErrRateUnavailable = errors.New("fx: exchange rate unavailable")

// RateSource fetches a conversion rate from an external provider.
type RateSource interface {
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

type entry struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Cache is a process-wide TTL cache of conversion rates.
type Cache struct {
	source RateSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	tracked map[string][2]string // pairs the sweep keeps fresh
}

// NewCache creates a cache over the given source. A non-positive ttl falls
// back to DefaultTTL.
func NewCache(source RateSource, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
		tracked: make(map[string][2]string),
	}
}

// Track registers a pair for proactive refresh without fetching it.
// Pairs served by Rate are tracked automatically.
func (c *Cache) Track(from, to string) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return
	}
	c.mu.Lock()
	c.tracked[key(from, to)] = [2]string{from, to}
	c.mu.Unlock()
}

// Rate returns the conversion rate from one currency to another. Identity
// pairs are always 1 with no lookup. On a cache miss the rate is fetched
// synchronously, stored with the TTL, and returned; provider failure or
// timeout yields ErrRateUnavailable.
func (c *Cache) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	k := key(from, to)
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		cacheHits.Inc()
		return e.rate, nil
	}
	cacheMisses.Inc()

	rate, err := c.refresh(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	return rate, nil
}

// Convert converts amount from one currency to another, rounding half-up to
// two decimal places. Identity conversions return the amount unchanged.
func (c *Cache) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if normalize(from) == normalize(to) {
		return amount, nil
	}
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}

// RefreshTracked re-fetches every tracked pair, regardless of age. Failures
// are logged and counted, never returned: the next sweep retries. Called by
// the background Sweeper; foreground requests never wait on it.
func (c *Cache) RefreshTracked(ctx context.Context) {
	c.mu.RLock()
	pairs := make([][2]string, 0, len(c.tracked))
	for _, p := range c.tracked {
		pairs = append(pairs, p)
	}
	c.mu.RUnlock()

	for _, p := range pairs {
		if _, err := c.refresh(ctx, p[0], p[1]); err != nil {
			slog.Warn("fx sweep refresh failed", "from", p[0], "to", p[1], "error", err)
			continue
		}
	}
}

// refresh fetches a pair from the provider and upserts it. No lock is held
// across the provider call.
func (c *Cache) refresh(ctx context.Context, from, to string) (decimal.Decimal, error) {
	rate, err := c.source.FetchRate(ctx, from, to)
	if err != nil {
		fetchFailures.Inc()
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.entries[key(from, to)] = entry{rate: rate, fetchedAt: c.now()}
	c.tracked[key(from, to)] = [2]string{from, to}
	c.mu.Unlock()
	return rate, nil
}

func normalize(currency string) string { return strings.ToUpper(strings.TrimSpace(currency)) }

func key(from, to string) string { return from + "/" + to }
