package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFetchTimeout bounds a single provider call. The provider is on the
// critical path of cache misses, so an unbounded call could stall a
// foreground request indefinitely.
const DefaultFetchTimeout = 10 * time.Second

// ProviderClient fetches conversion rates from an external FX provider
// exposing GET /pair/{from}/{to}.
type ProviderClient struct {
	baseURL string
	client  *http.Client
}

// NewProviderClient creates a client against the provider's base URL. A
// non-positive timeout falls back to DefaultFetchTimeout.
func NewProviderClient(baseURL string, timeout time.Duration) *ProviderClient {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &ProviderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// pairResponse is the provider's wire format.
type pairResponse struct {
	Result         string          `json:"result"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

// FetchRate retrieves the conversion rate from one currency to another.
// Timeouts and non-success responses are plain errors; the cache translates
// them into ErrRateUnavailable for foreground callers.
func (c *ProviderClient) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/pair/%s/%s", c.baseURL, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate %s/%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch rate %s/%s: provider returned %d", from, to, resp.StatusCode)
	}

	var body pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}
	if body.Result != "success" {
		return decimal.Zero, fmt.Errorf("fetch rate %s/%s: provider result %q", from, to, body.Result)
	}
	if !body.ConversionRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fetch rate %s/%s: non-positive rate %s", from, to, body.ConversionRate)
	}
	return body.ConversionRate, nil
}
