package solanarpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// windowSize is the upstream batch limit for transaction hydration
// (spec.md §4.1): at most 100 signatures resolved per call.
const windowSize = 100

// HydrateResult is the output of hydrating one wallet's signature list.
type HydrateResult struct {
	Transactions []*rpc.GetTransactionResult // same length and order as the input signatures
	RateLimited  bool                        // true if any window exhausted its retry budget under 429s
}

// txFetcher is the subset of Client the hydrator needs, narrowed so window
// retry logic can be tested without a live RPC connection.
type txFetcher interface {
	GetTransactions(ctx context.Context, sigs []solana.Signature) ([]*rpc.GetTransactionResult, error)
}

// Hydrator resolves signatures into full transactions in fixed windows,
// dispatched concurrently and bounded by the Client's shared semaphore and
// rate limiter (C1). A window that keeps hitting 429s is retried with the
// client's backoff schedule before the hydrator gives up on it and marks
// the result partial.
type Hydrator struct {
	client txFetcher
}

func NewHydrator(client *Client) *Hydrator {
	return &Hydrator{client: client}
}

// Hydrate fetches every signature in sigs, windowSize at a time. Windows run
// concurrently; the result preserves input order regardless of which window
// finished first. onWindowDone, if non-nil, is invoked once per completed
// window with the running count of signatures resolved so far and the
// total, letting a caller surface progress events (spec.md §4.9).
func (h *Hydrator) Hydrate(ctx context.Context, sigs []solana.Signature, onWindowDone func(done, total int)) (HydrateResult, error) {
	out := make([]*rpc.GetTransactionResult, len(sigs))

	type windowSpan struct {
		start, end int
	}
	var windows []windowSpan
	for start := 0; start < len(sigs); start += windowSize {
		end := start + windowSize
		if end > len(sigs) {
			end = len(sigs)
		}
		windows = append(windows, windowSpan{start, end})
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		firstErr    error
		rateLimited bool
		resolved    int
	)

	for _, win := range windows {
		win := win
		wg.Add(1)
		go func() {
			defer wg.Done()

			results, limited, err := h.hydrateWindow(ctx, sigs[win.start:win.end])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if limited {
				rateLimited = true
			}
			copy(out[win.start:win.end], results)
			resolved += win.end - win.start
			if onWindowDone != nil {
				onWindowDone(resolved, len(sigs))
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return HydrateResult{}, firstErr
	}
	return HydrateResult{Transactions: out, RateLimited: rateLimited}, nil
}

// hydrateWindow fetches one window, retrying the whole window on a
// rate-limited response per the client's backoff schedule. A non-rate-limit
// error is returned immediately; exhausting the backoff schedule returns a
// window of nil entries with limited=true rather than failing the whole
// hydration.
func (h *Hydrator) hydrateWindow(ctx context.Context, sigs []solana.Signature) ([]*rpc.GetTransactionResult, bool, error) {
	var lastErr error

	attempts := append([]time.Duration{0}, backoffSchedule...)
	for attempt, wait := range attempts {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(wait):
			}
		}

		results, err := h.client.GetTransactions(ctx, sigs)
		if err == nil {
			return results, false, nil
		}
		lastErr = err

		var rpcErr *Error
		if !errors.As(err, &rpcErr) || rpcErr.Category != CategoryRateLimited {
			return nil, false, err
		}

		slog.Warn("hydrator: window rate-limited, backing off",
			"attempt", attempt+1, "window_size", len(sigs))
	}

	slog.Warn("hydrator: window still rate-limited after retry budget, surfacing partial result",
		"window_size", len(sigs), "error", lastErr)
	return make([]*rpc.GetTransactionResult, len(sigs)), true, nil
}
