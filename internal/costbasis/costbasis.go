// Package costbasis implements the FIFO Cost-Basis Engine (C6) and the
// Unrealized P&L Calculator (C7). Grounded on the FIFO lot-consumption
// pattern in other_examples/63d7e82c_Sirhid24k-teneo-agent-sdk's P&L
// engine (buyLot{tokenRemaining, costPerToken}, consumed head-first on
// sells), generalized to this repo's multi-wallet, multi-mint Position
// model and decimal arithmetic throughout (never float, for money).
package costbasis

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/model"
)

// dustThreshold is the remaining-amount floor below which a lot is closed
// and discarded rather than left open with a near-zero balance. Token
// amounts here are already decimal-normalized (not raw units), so a single
// small constant stands in for spec.md's per-mint 10^-decimals floor.
var dustThreshold = decimal.New(1, -9)

type mintState struct {
	lots            []model.Lot
	symbol          string
	segmentOpenedAt time.Time
	lastTradeAt     time.Time
	consistency     model.PositionConsistency
}

// Engine folds a wallet's trades into per-mint FIFO lot queues, filling in
// RealizedPnLUSD on SELL trades as it goes, and yields the resulting open
// Positions for whatever mints still have a balance at end-of-stream.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Run processes trades in (block_time, slot, intra_tx_index) order —
// sorting defensively even though callers are expected to already provide
// that order — and returns the enriched trades alongside the resulting
// open positions.
func (e *Engine) Run(wallet string, trades []model.Trade) ([]model.Trade, []model.Position) {
	sorted := make([]model.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, si, ii := sorted[i].SortKey()
		bj, sj, ij := sorted[j].SortKey()
		if !bi.Equal(bj) {
			return bi.Before(bj)
		}
		if si != sj {
			return si < sj
		}
		return ii < ij
	})

	states := map[string]*mintState{}
	for i := range sorted {
		e.apply(wallet, &sorted[i], states)
	}

	positions := make([]model.Position, 0, len(states))
	for mint, st := range states {
		if len(st.lots) == 0 {
			continue
		}
		positions = append(positions, materialize(wallet, mint, st))
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Mint < positions[j].Mint })

	return sorted, positions
}

func (e *Engine) apply(wallet string, t *model.Trade, states map[string]*mintState) {
	mint := t.PrimaryTokenMint
	st, ok := states[mint]
	if !ok {
		st = &mintState{consistency: model.PositionConsistencyOK}
		states[mint] = st
	}
	st.lastTradeAt = t.BlockTime
	if sym := primarySymbol(*t); sym != "" {
		st.symbol = sym
	}

	switch t.Action {
	case model.ActionBuy:
		e.applyBuy(t, st)
	case model.ActionSell:
		e.applySell(t, st)
	}
}

func (e *Engine) applyBuy(t *model.Trade, st *mintState) {
	if len(st.lots) == 0 {
		st.segmentOpenedAt = t.BlockTime
	}

	var costPerUnit decimal.NullDecimal
	if t.ValueUSD.Valid && !t.Amount.IsZero() {
		costPerUnit = decimal.NewNullDecimal(t.ValueUSD.Decimal.Div(t.Amount))
	}

	st.lots = append(st.lots, model.Lot{
		Mint:            t.PrimaryTokenMint,
		RemainingAmount: t.Amount,
		CostPerUnit:     costPerUnit,
		AcquiredAt:      t.BlockTime,
		SourceSignature: t.Signature,
	})
}

func (e *Engine) applySell(t *model.Trade, st *mintState) {
	toSell := t.Amount
	covered := decimal.Zero
	costOfCovered := decimal.Zero
	knownCost := true

	for len(st.lots) > 0 && toSell.GreaterThan(decimal.Zero) {
		lot := &st.lots[0]
		consume := lot.RemainingAmount
		if toSell.LessThan(consume) {
			consume = toSell
		}

		if lot.CostPerUnit.Valid {
			costOfCovered = costOfCovered.Add(consume.Mul(lot.CostPerUnit.Decimal))
		} else {
			knownCost = false
		}
		covered = covered.Add(consume)

		lot.RemainingAmount = lot.RemainingAmount.Sub(consume)
		toSell = toSell.Sub(consume)

		if lot.RemainingAmount.LessThan(dustThreshold) {
			st.lots = st.lots[1:]
		}
	}

	if toSell.GreaterThan(decimal.Zero) {
		st.consistency = model.PositionConsistencyUncoveredSells
	}

	if t.PriceUSD.Valid && knownCost {
		proceeds := covered.Mul(t.PriceUSD.Decimal)
		t.RealizedPnLUSD = decimal.NewNullDecimal(proceeds.Sub(costOfCovered))
	}
}

func materialize(wallet, mint string, st *mintState) model.Position {
	balance := decimal.Zero
	costBasis := decimal.Zero
	conf := model.CostBasisKnown
	for _, lot := range st.lots {
		balance = balance.Add(lot.RemainingAmount)
		if lot.CostPerUnit.Valid {
			costBasis = costBasis.Add(lot.RemainingAmount.Mul(lot.CostPerUnit.Decimal))
		} else {
			conf = model.CostBasisUnknown
		}
	}

	return model.Position{
		PositionID:    positionID(wallet, mint, st.segmentOpenedAt),
		Wallet:        wallet,
		Mint:          mint,
		Symbol:        st.symbol,
		Balance:       balance,
		CostBasisUSD:  costBasis,
		CostBasisConf: conf,
		Consistency:   st.consistency,
		OpenedAt:      st.segmentOpenedAt,
		LastTradeAt:   st.lastTradeAt,
	}
}

// positionID is deterministic: first8(wallet)::first8(mint)::opened_at_unix
// (spec.md §4.6), so the same lot history always yields the same ID.
func positionID(wallet, mint string, openedAt time.Time) string {
	return fmt.Sprintf("%s::%s::%d", first8(wallet), first8(mint), openedAt.Unix())
}

func first8(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func primarySymbol(t model.Trade) string {
	if t.TokenIn.Mint == t.PrimaryTokenMint {
		return t.TokenIn.Symbol
	}
	if t.TokenOut.Mint == t.PrimaryTokenMint {
		return t.TokenOut.Symbol
	}
	return ""
}
