package rest

import (
	"context"
	"errors"
	"time"

	"github.com/walletdigest/wdapi/internal/apperr"
	"github.com/walletdigest/wdapi/internal/cache"
	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/pipeline"
)

// Service is the HTTP surface's view of the ingestion pipeline: cache-first
// reads that fall through to a full pipeline run on a miss, and coalesced
// background refreshes on a stale hit (spec.md §4.8/§4.9 cold/warm paths).
type Service struct {
	pipeline  *pipeline.Pipeline
	trades    *cache.Store[[]model.Trade]
	snapshots *cache.Store[model.PortfolioSnapshot]
}

func NewService(p *pipeline.Pipeline, trades *cache.Store[[]model.Trade], snapshots *cache.Store[model.PortfolioSnapshot]) *Service {
	return &Service{pipeline: p, trades: trades, snapshots: snapshots}
}

// GetTrades returns wallet's trades, cache-first, and the cache metadata the
// handler uses to set the response's stale/age fields. forceRefresh bypasses
// both tiers entirely for this one request (spec.md §4.8's `?refresh=true`),
// reading the cache only afterward to carry a "previous" set forward for new-
// trade detection.
func (s *Service) GetTrades(ctx context.Context, wallet string, forceRefresh bool) ([]model.Trade, cache.Meta, error) {
	key := cache.TradesKey(wallet)

	if !forceRefresh {
		snap, meta := s.trades.Get(ctx, key)
		if meta.Hit {
			if meta.Stale {
				previous := snap.Value
				s.trades.Refresh(key, func(ctx context.Context) ([]model.Trade, error) {
					return s.fetchTrades(ctx, wallet, previous)
				})
			}
			return snap.Value, meta, nil
		}
	}

	var previous []model.Trade
	if snap, meta := s.trades.Get(ctx, key); meta.Hit {
		previous = snap.Value
	}

	trades, err := s.fetchTrades(ctx, wallet, previous)
	if err != nil {
		return nil, cache.Meta{}, err
	}
	if err := s.trades.Set(ctx, key, trades); err != nil {
		return trades, cache.Meta{}, nil // serve the fresh result even if the cache write failed
	}
	return trades, cache.Meta{Hit: true}, nil
}

// GetPositions mirrors GetTrades for the positions/PortfolioSnapshot cache.
func (s *Service) GetPositions(ctx context.Context, wallet string, forceRefresh bool) (model.PortfolioSnapshot, cache.Meta, error) {
	key := cache.SnapshotKey(wallet)

	if !forceRefresh {
		snap, meta := s.snapshots.Get(ctx, key)
		if meta.Hit {
			if meta.Stale {
				s.snapshots.Refresh(key, func(ctx context.Context) (model.PortfolioSnapshot, error) {
					return s.runForSnapshot(ctx, wallet)
				})
			}
			return snap.Value, meta, nil
		}
	}

	result, err := s.runForSnapshot(ctx, wallet)
	if err != nil {
		return model.PortfolioSnapshot{}, cache.Meta{}, err
	}
	if err := s.snapshots.Set(ctx, key, result); err != nil {
		return result, cache.Meta{}, nil
	}
	return result, cache.Meta{Hit: true}, nil
}

// fetchTrades runs the pipeline for wallet and invalidates the wallet's
// pos:v1:* snapshot cache if the fresh result carries any trade not present
// in previous (spec.md §4.8's invalidation rule). previous is nil on a cold
// start, which trivially counts any non-empty result as new.
func (s *Service) fetchTrades(ctx context.Context, wallet string, previous []model.Trade) ([]model.Trade, error) {
	fresh, err := s.runForTrades(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if newTradesObserved(previous, fresh) {
		s.snapshots.Invalidate(ctx, cache.SnapshotKey(wallet))
	}
	return fresh, nil
}

// newTradesObserved reports whether fresh contains any signature absent from
// previous. There is no separate per-mint pos:v1:position:* store in this
// implementation (only the wallet-level snapshot is cached), so invalidating
// the snapshot key covers the full pos:v1:* namespace spec.md §4.8 names.
func newTradesObserved(previous, fresh []model.Trade) bool {
	if len(fresh) == 0 {
		return false
	}
	seen := make(map[model.Signature]struct{}, len(previous))
	for _, t := range previous {
		seen[t.Signature] = struct{}{}
	}
	for _, t := range fresh {
		if _, ok := seen[t.Signature]; !ok {
			return true
		}
	}
	return false
}

func (s *Service) runForTrades(ctx context.Context, wallet string) ([]model.Trade, error) {
	pub, err := ValidateWallet(wallet)
	if err != nil {
		return nil, err
	}
	result, err := s.pipeline.Run(ctx, wallet, pub, nil)
	if err != nil {
		return nil, wrapPipelineErr(err)
	}
	return result.Trades, nil
}

func (s *Service) runForSnapshot(ctx context.Context, wallet string) (model.PortfolioSnapshot, error) {
	pub, err := ValidateWallet(wallet)
	if err != nil {
		return model.PortfolioSnapshot{}, err
	}
	result, err := s.pipeline.Run(ctx, wallet, pub, nil)
	if err != nil {
		return model.PortfolioSnapshot{}, wrapPipelineErr(err)
	}
	return model.PortfolioSnapshot{
		Wallet:        wallet,
		SchemaVersion: model.SchemaPositionsV08,
		Timestamp:     time.Now(),
		Positions:     result.PositionsPnL,
		Summary:       result.Summary,
		PriceSources: map[string]string{
			"mode": "sol-spot",
			"hint": "re-request after the cache TTL for refreshed prices",
		},
	}, nil
}

func wrapPipelineErr(err error) error {
	var timeoutErr *pipeline.TimeoutError
	if errors.As(err, &timeoutErr) {
		return apperr.Timeout(timeoutErr.Error())
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Canceled()
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.UpstreamFailure("pipeline run failed", err)
}
