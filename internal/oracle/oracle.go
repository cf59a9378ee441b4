// Package oracle implements the Price Oracle (C5): layered USD price
// resolution for (mint, timestamp), composing swap-implied, SOL-spot,
// external-provider, and stale-cache answers behind a single Resolve call.
// The short-lived in-process maps are grounded on the teacher's use of
// patrickmn/go-cache for in-memory TTL state elsewhere in its price path.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/clients/priceprovider"
	"github.com/walletdigest/wdapi/internal/model"
)

// Config mirrors spec.md §4.5's enumerated options.
type Config struct {
	HeliusOnly              bool
	SolSpotOnly             bool
	ExternalProviderEnabled bool
	StaleTTL                time.Duration
	SolSpotTTL              time.Duration
}

func DefaultConfig() Config {
	return Config{
		SolSpotOnly: true,
		StaleTTL:    6 * time.Hour,
		SolSpotTTL:  30 * time.Second,
	}
}

// solSpotFetcher resolves the current SOL/USD rate. Implemented in
// production by a thin wrapper over the external provider or another spot
// source; narrowed to an interface so Oracle is testable without a live
// upstream.
type solSpotFetcher interface {
	FetchSOLUSD(ctx context.Context) (decimal.Decimal, error)
}

// Result is one resolved price.
type Result struct {
	PriceUSD   decimal.NullDecimal
	Confidence model.Confidence
	Source     string
	AgeSeconds int64
}

func unavailable() Result {
	return Result{Confidence: model.ConfidenceUnavailable}
}

// Oracle resolves prices per spec.md §4.5, first successful layer wins.
type Oracle struct {
	cfg Config

	// swapImplied caches high-confidence prices derived from an observed
	// SOL/stable swap at the same slot, keyed "mint:slotBucket".
	swapImplied *gocache.Cache
	// solSpot caches the current SOL/USD rate for SolSpotTTL.
	solSpot *gocache.Cache
	// lastKnown retains the most recent resolved price per mint,
	// regardless of layer, so a later miss can still serve it stale.
	lastKnown *gocache.Cache

	spot     solSpotFetcher
	external *priceprovider.Client
}

func New(cfg Config, spot solSpotFetcher, external *priceprovider.Client) *Oracle {
	return &Oracle{
		cfg:         cfg,
		swapImplied: gocache.New(2*time.Minute, 5*time.Minute),
		solSpot:     gocache.New(cfg.SolSpotTTL, cfg.SolSpotTTL),
		lastKnown:   gocache.New(cfg.StaleTTL, cfg.StaleTTL),
		spot:        spot,
		external:    external,
	}
}

// slotBucket groups nearby slots into one swap-implied cache key. Solana
// produces a slot roughly every 400ms; bucketing by 10 slots (~4s) keeps
// the swap-implied price usable for near-simultaneous trades in the same
// transaction without conflating distinct market moments.
func slotBucket(slot uint64) uint64 { return slot / 10 }

func swapImpliedKey(mint string, slot uint64) string {
	return fmt.Sprintf("%s:%d", mint, slotBucket(slot))
}

// RecordSwapImplied stores a price derived from an observed mint/SOL swap
// at slot, so later lookups for the same mint at a nearby slot resolve at
// ConfidenceHigh without another upstream call.
func (o *Oracle) RecordSwapImplied(mint string, slot uint64, priceUSD decimal.Decimal) {
	o.swapImplied.Set(swapImpliedKey(mint, slot), priceUSD, gocache.DefaultExpiration)
	o.lastKnown.Set(mint, lastKnownEntry{price: priceUSD, at: time.Now()}, gocache.DefaultExpiration)
}

type lastKnownEntry struct {
	price decimal.Decimal
	at    time.Time
}

// Resolve answers the price of mint at the given (slot, timestamp),
// trying each layer of spec.md §4.5 in order.
func (o *Oracle) Resolve(ctx context.Context, mint string, slot uint64, at time.Time) Result {
	if model.IsSolOrStable(mint) {
		if model.IsSolMint(mint) {
			return o.resolveSolSpot(ctx)
		}
		return Result{PriceUSD: decimal.NewNullDecimal(decimal.NewFromInt(1)), Confidence: model.ConfidenceHigh, Source: "stable"}
	}

	if v, found := o.swapImplied.Get(swapImpliedKey(mint, slot)); found {
		return Result{PriceUSD: decimal.NewNullDecimal(v.(decimal.Decimal)), Confidence: model.ConfidenceHigh, Source: "swap-implied"}
	}

	if o.cfg.SolSpotOnly {
		return o.resolveSolSpot(ctx)
	}

	if o.cfg.ExternalProviderEnabled && o.external != nil && o.external.Enabled() {
		if r, ok := o.resolveExternal(ctx, mint, at); ok {
			return r
		}
	}

	if v, found := o.lastKnown.Get(mint); found {
		entry := v.(lastKnownEntry)
		age := time.Since(entry.at)
		if age <= o.cfg.StaleTTL {
			return Result{
				PriceUSD:   decimal.NewNullDecimal(entry.price),
				Confidence: model.ConfidenceStale,
				Source:     "stale-cache",
				AgeSeconds: int64(age.Seconds()),
			}
		}
	}

	return unavailable()
}

func (o *Oracle) resolveSolSpot(ctx context.Context) Result {
	const key = "sol-usd"
	if v, found := o.solSpot.Get(key); found {
		return Result{PriceUSD: decimal.NewNullDecimal(v.(decimal.Decimal)), Confidence: model.ConfidenceEstimated, Source: "sol-spot"}
	}

	if o.spot == nil {
		return unavailable()
	}
	price, err := o.spot.FetchSOLUSD(ctx)
	if err != nil {
		slog.Warn("oracle: sol-spot fetch failed", "error", err)
		return unavailable()
	}
	o.solSpot.Set(key, price, gocache.DefaultExpiration)
	o.lastKnown.Set(model.NativeSolMint, lastKnownEntry{price: price, at: time.Now()}, gocache.DefaultExpiration)
	return Result{PriceUSD: decimal.NewNullDecimal(price), Confidence: model.ConfidenceEstimated, Source: "sol-spot"}
}

func (o *Oracle) resolveExternal(ctx context.Context, mint string, at time.Time) (Result, bool) {
	quotes, err := o.external.BatchQuote(ctx, []struct {
		Mint   string
		Minute int64
	}{{Mint: mint, Minute: at.Unix() / 60}})
	if err != nil || len(quotes) == 0 || !quotes[0].Available {
		if err != nil {
			slog.Warn("oracle: external provider failed", "mint", mint, "error", err)
		}
		return Result{}, false
	}

	price := quotes[0].PriceUSD
	o.lastKnown.Set(mint, lastKnownEntry{price: price, at: time.Now()}, gocache.DefaultExpiration)
	return Result{PriceUSD: decimal.NewNullDecimal(price), Confidence: model.ConfidenceEstimated, Source: "external-provider"}, true
}
