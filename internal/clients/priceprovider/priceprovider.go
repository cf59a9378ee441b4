// Package priceprovider is the Price Oracle's external-provider layer
// (spec.md §4.5 layer 3): a thin batched HTTP client over a price-history
// API, keyed by (mint, unix_minute). Grounded on the teacher's
// internal/service/price.Service — same net/http client, manual query
// string, X-API-KEY header shape — generalized from a single-mint lookup
// into the batched lookup this oracle layer needs.
package priceprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/clients/tracker"
)

// Quote is one resolved price for a (mint, minute) pair.
type Quote struct {
	Mint      string
	Minute    int64 // unix minute bucket
	PriceUSD  decimal.Decimal
	Available bool
}

// Client queries an external price-history provider. Disabled entirely
// when apiKey is empty; callers should check Enabled() before calling.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	heliusOnly bool
	tracker    *tracker.APITracker
}

type Config struct {
	BaseURL    string
	APIKey     string
	HeliusOnly bool
}

func New(cfg Config, trk *tracker.APITracker) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		heliusOnly: cfg.HeliusOnly,
		tracker:    trk,
	}
}

// Enabled reports whether the provider is configured at all.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// BatchQuote resolves prices for every (mint, minute) request in one HTTP
// round trip. Entries the provider has no data for come back with
// Available=false rather than as an error, so a partial miss doesn't fail
// the whole batch.
func (c *Client) BatchQuote(ctx context.Context, reqs []struct {
	Mint   string
	Minute int64
}) ([]Quote, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("priceprovider: no API key configured")
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	var out []Quote
	err := c.tracker.InstrumentCall(ctx, "priceprovider", "BatchQuote", func(ctx context.Context) error {
		quotes, callErr := c.doBatchQuote(ctx, reqs)
		if callErr != nil {
			return callErr
		}
		out = quotes
		return nil
	})
	return out, err
}

func (c *Client) doBatchQuote(ctx context.Context, reqs []struct {
	Mint   string
	Minute int64
}) ([]Quote, error) {
	mints := make([]string, 0, len(reqs))
	minutes := make([]string, 0, len(reqs))
	for _, r := range reqs {
		mints = append(mints, r.Mint)
		minutes = append(minutes, strconv.FormatInt(r.Minute, 10))
	}

	q := url.Values{}
	q.Set("mints", strings.Join(mints, ","))
	q.Set("minutes", strings.Join(minutes, ","))
	if c.heliusOnly {
		q.Set("source", "helius")
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/price/batch?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("priceprovider: build request: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("priceprovider: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("priceprovider: upstream status %d", resp.StatusCode)
	}

	var payload struct {
		Quotes []struct {
			Mint      string  `json:"mint"`
			Minute    int64   `json:"minute"`
			PriceUSD  float64 `json:"price_usd"`
			Available bool    `json:"available"`
		} `json:"quotes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("priceprovider: decode response: %w", err)
	}

	out := make([]Quote, len(payload.Quotes))
	for i, q := range payload.Quotes {
		out[i] = Quote{
			Mint:      q.Mint,
			Minute:    q.Minute,
			PriceUSD:  decimal.NewFromFloat(q.PriceUSD),
			Available: q.Available,
		}
	}
	return out, nil
}
