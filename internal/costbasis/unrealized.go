package costbasis

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/oracle"
)

// priceResolver is the subset of oracle.Oracle the unrealized calculator
// needs, narrowed to an interface so it can be tested without a live
// Oracle.
type priceResolver interface {
	Resolve(ctx context.Context, mint string, slot uint64, at time.Time) oracle.Result
}

// Unrealized computes PositionPnL for every open position (C7) and the
// portfolio-level summary. highBudget/estBudget are the max price age
// (spec.md §4.7) tolerated for confidence=high and confidence=est answers
// respectively; prices older than their budget are treated as unavailable
// for this call even though the oracle itself still reports them as stale.
func Unrealized(ctx context.Context, positions []model.Position, prices priceResolver, highBudget, estBudget time.Duration) ([]model.PositionPnL, model.PortfolioSummary) {

	out := make([]model.PositionPnL, 0, len(positions))

	totalValue := decimal.Zero
	haveValue := false
	totalUnrealized := decimal.Zero
	haveUnrealized := false
	totalCostBasis := decimal.Zero
	staleCount := 0

	for _, pos := range positions {
		// C7 asks the oracle for a current price, not a price as of the
		// position's last trade — "at" only matters to the external-provider
		// (minute-keyed) layer; slot=0 never matches a swap-implied entry.
		ans := prices.Resolve(ctx, pos.Mint, 0, time.Now())

		pnl := model.PositionPnL{
			Position:        pos,
			PriceConfidence: ans.Confidence,
			PriceAgeSeconds: ans.AgeSeconds,
			PriceSource:     ans.Source,
		}

		withinBudget := true
		switch ans.Confidence {
		case model.ConfidenceHigh:
			withinBudget = time.Duration(ans.AgeSeconds)*time.Second <= highBudget
		case model.ConfidenceEstimated:
			withinBudget = time.Duration(ans.AgeSeconds)*time.Second <= estBudget
		}

		if ans.PriceUSD.Valid && withinBudget {
			price := ans.PriceUSD.Decimal
			value := pos.Balance.Mul(price)
			unrealized := value.Sub(pos.CostBasisUSD)

			pnl.CurrentPriceUSD = ans.PriceUSD
			pnl.CurrentValueUSD = decimal.NewNullDecimal(value)
			pnl.UnrealizedPnLUSD = decimal.NewNullDecimal(unrealized)
			if !pos.CostBasisUSD.IsZero() {
				pnl.UnrealizedPnLPct = decimal.NewNullDecimal(unrealized.Div(pos.CostBasisUSD))
			}

			totalValue = totalValue.Add(value)
			haveValue = true
			totalUnrealized = totalUnrealized.Add(unrealized)
			haveUnrealized = true
		} else {
			pnl.PriceConfidence = model.ConfidenceUnavailable
		}

		if ans.Confidence == model.ConfidenceStale {
			staleCount++
		}
		totalCostBasis = totalCostBasis.Add(pos.CostBasisUSD)

		out = append(out, pnl)
	}

	summary := model.PortfolioSummary{StalePriceCount: staleCount}
	if haveValue {
		summary.TotalValueUSD = decimal.NewNullDecimal(totalValue)
	}
	if haveUnrealized {
		summary.TotalUnrealizedPnLUSD = decimal.NewNullDecimal(totalUnrealized)
		if !totalCostBasis.IsZero() {
			summary.TotalUnrealizedPnLPct = decimal.NewNullDecimal(totalUnrealized.Div(totalCostBasis))
		}
	}

	return out, summary
}
