// Package solanarpc is the upstream RPC client (C1): rate-limited,
// concurrency-capped access to a Solana RPC provider, narrowed to the three
// calls this service needs — signature enumeration, batched transaction
// fetch, and account lookups. Every call is wrapped in the teacher's
// tracker.APITracker instrumentation pattern.
package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/walletdigest/wdapi/internal/clients/tracker"
)

// Category classifies an upstream failure per spec.md §4.1.
type Category int

const (
	CategoryRateLimited Category = iota
	CategoryUpstream5xx
	CategoryUpstream4xx
	CategoryDeserialize
	CategoryTimeout
)

// Error wraps an upstream failure with its category and, for 4xx, the
// original status code.
type Error struct {
	Category Category
	Status   int
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("solanarpc: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

var backoffSchedule = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// Client is the upstream RPC client. It owns the global rate limit and
// concurrency semaphore shared by every caller — the hydrator dispatches
// concurrent batches through the same Client, so the limits are enforced
// process-wide, not per pipeline run (spec.md §5).
type Client struct {
	rpcConn *rpc.Client
	tracker *tracker.APITracker

	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// Config configures the shared rate/concurrency limits (spec.md §6.1).
type Config struct {
	RPS               float64
	MaxConcurrency    int64
	RequestTimeout    time.Duration
}

func New(endpoint string, cfg Config, trk *tracker.APITracker) *Client {
	return &Client{
		rpcConn: rpc.New(endpoint),
		tracker: trk,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
	}
}

// acquire blocks for a concurrency slot and a rate-limiter token, in that
// order, and returns a release function.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.sem.Release(1)
		return nil, err
	}
	return func() { c.sem.Release(1) }, nil
}

// GetSignaturesForAddress fetches one page of signatures, newest-first,
// optionally before a cursor signature. Satisfies C2's paging contract.
func (c *Client) GetSignaturesForAddress(ctx context.Context, wallet solana.PublicKey, before solana.Signature, limit int) ([]*rpc.TransactionSignature, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []*rpc.TransactionSignature
	err = c.tracker.InstrumentCall(ctx, "solana", "GetSignaturesForAddress", func(ctx context.Context) error {
		opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
		if before != (solana.Signature{}) {
			opts.Before = before
		}
		result, callErr := c.rpcConn.GetSignaturesForAddressWithOpts(ctx, wallet, opts)
		if callErr != nil {
			return classify(callErr)
		}
		out = result
		return nil
	})
	if err != nil {
		slog.Warn("GetSignaturesForAddress failed", "wallet", wallet.String(), "error", err)
		return nil, err
	}
	return out, nil
}

// GetTransactions fetches up to 100 transactions by signature under one
// concurrency slot and one rate-limiter token. The signatures are not sent
// as a single batched upstream request: each one is a separate
// getTransaction call, made in sequence. Results are returned in request
// order; a nil entry marks a signature the provider could not resolve.
func (c *Client) GetTransactions(ctx context.Context, sigs []solana.Signature) ([]*rpc.GetTransactionResult, error) {
	if len(sigs) > 100 {
		return nil, fmt.Errorf("solanarpc: batch of %d exceeds the 100-signature limit", len(sigs))
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	maxVersion := uint64(0)
	out := make([]*rpc.GetTransactionResult, len(sigs))

	err = c.tracker.InstrumentCall(ctx, "solana", "GetTransaction.batch", func(ctx context.Context) error {
		for i, sig := range sigs {
			res, callErr := c.rpcConn.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
				Encoding:                       solana.EncodingBase64,
				MaxSupportedTransactionVersion: &maxVersion,
			})
			if callErr != nil {
				if errors.Is(callErr, rpc.ErrNotFound) {
					continue
				}
				return classify(callErr)
			}
			out[i] = res
		}
		return nil
	})
	if err != nil {
		slog.Warn("GetTransactions batch failed", "count", len(sigs), "error", err)
		return nil, err
	}
	return out, nil
}

// GetAccountInfo is used by the extractor/oracle to resolve mint decimals
// when they are not already present on a transfer.
func (c *Client) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *rpc.GetAccountInfoResult
	err = c.tracker.InstrumentCall(ctx, "solana", "GetAccountInfo", func(ctx context.Context) error {
		result, callErr := c.rpcConn.GetAccountInfo(ctx, address)
		if callErr != nil {
			return classify(callErr)
		}
		out = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// classify maps a raw error from the RPC library into the taxonomy
// spec.md §4.1 names, so callers can decide retry vs fail-fast. The
// gagliardetto client does not expose a typed HTTP status, so this keys
// off any wrapped error exposing an HTTPStatusCode() method (httpStatuser)
// and otherwise falls back to context deadline detection.
func classify(err error) error {
	if status, ok := httpStatus(err); ok {
		switch {
		case status == http.StatusTooManyRequests:
			return &Error{Category: CategoryRateLimited, Status: status, Err: err}
		case status >= 500:
			return &Error{Category: CategoryUpstream5xx, Status: status, Err: err}
		case status >= 400:
			return &Error{Category: CategoryUpstream4xx, Status: status, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Category: CategoryTimeout, Err: err}
	}
	return &Error{Category: CategoryDeserialize, Err: err}
}

// httpStatuser is implemented by jsonrpc.RPCError in recent solana-go
// releases when the transport surfaces a raw HTTP status.
type httpStatuser interface{ HTTPStatusCode() int }

func httpStatus(err error) (int, bool) {
	var hs httpStatuser
	if errors.As(err, &hs) {
		return hs.HTTPStatusCode(), true
	}
	return 0, false
}
