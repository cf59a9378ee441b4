// Package solspot resolves the current SOL/USD rate from Birdeye's single-
// price endpoint, grounded on the teacher's internal/service/price.Service
// (same base URL, X-API-KEY header), narrowed from
// the teacher's historical-price lookup to a single current-price call.
// Satisfies the Price Oracle's (C5) solSpotFetcher interface.
package solspot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/clients/tracker"
	"github.com/walletdigest/wdapi/internal/model"
)

const birdeyeBaseURL = "https://public-api.birdeye.so"

// Client fetches the current SOL/USD rate.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	tracker    *tracker.APITracker
}

func New(apiKey string, trk *tracker.APITracker) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    birdeyeBaseURL,
		apiKey:     apiKey,
		tracker:    trk,
	}
}

// FetchSOLUSD implements oracle's solSpotFetcher.
func (c *Client) FetchSOLUSD(ctx context.Context) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.tracker.InstrumentCall(ctx, "solspot", "FetchSOLUSD", func(ctx context.Context) error {
		p, callErr := c.doFetch(ctx)
		if callErr != nil {
			return callErr
		}
		price = p
		return nil
	})
	return price, err
}

func (c *Client) doFetch(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/defi/price?address=%s", c.baseURL, model.NativeSolMint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("solspot: build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-chain", "solana")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("solspot: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Decimal{}, fmt.Errorf("solspot: upstream status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			Value float64 `json:"value"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("solspot: decode response: %w", err)
	}
	if payload.Data.Value <= 0 {
		return decimal.Decimal{}, fmt.Errorf("solspot: no price available")
	}

	return decimal.NewFromFloat(payload.Data.Value), nil
}
