package rest

import (
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/model"
)

// compactSizeBudget is the target upper bound for the v0.7.2-compact
// trades export (spec.md §4.10).
const compactSizeBudget = 200 * 1024

// tradeWire is the shared shape for v0.7.0 and v0.7.1-trades-value; both
// versions carry the same fields, including enrichment, and differ only in
// the envelope's schema_version.
type tradeWire struct {
	Timestamp string              `json:"timestamp"`
	Signature string              `json:"signature"`
	Action    model.Action        `json:"action"`
	Token     string              `json:"token"`
	Amount    string              `json:"amount"`
	TokenIn   string              `json:"token_in"`
	TokenOut  string              `json:"token_out"`
	PriceSOL  decimal.NullDecimal `json:"price_sol"`
	PriceUSD  decimal.NullDecimal `json:"price_usd"`
	ValueUSD  decimal.NullDecimal `json:"value_usd"`
	PnLUSD    decimal.NullDecimal `json:"pnl_usd"`
	Priced    bool                `json:"priced"`
	Dex       string              `json:"dex,omitempty"`
	TxType    model.TxType        `json:"tx_type"`
}

func toTradeWire(t model.Trade) tradeWire {
	return tradeWire{
		Timestamp: t.BlockTime.UTC().Format(timeFormat),
		Signature: t.Signature.String(),
		Action:    t.Action,
		Token:     t.PrimaryTokenMint,
		Amount:    t.Amount.String(),
		TokenIn:   t.TokenIn.Mint,
		TokenOut:  t.TokenOut.Mint,
		PriceSOL:  decimal.NewNullDecimal(t.PriceSOL),
		PriceUSD:  t.PriceUSD,
		ValueUSD:  t.ValueUSD,
		PnLUSD:    t.RealizedPnLUSD,
		Priced:    t.Priced,
		Dex:       t.Dex,
		TxType:    t.TxType,
	}
}

// tradesExport is the v0.7.0 / v0.7.1-trades-value envelope.
type tradesExport struct {
	Wallet        string              `json:"wallet"`
	SchemaVersion model.SchemaVersion `json:"schema_version"`
	Signatures    []string            `json:"signatures"`
	Trades        []tradeWire         `json:"trades"`
}

func buildTradesExport(wallet string, version model.SchemaVersion, trades []model.Trade) tradesExport {
	out := tradesExport{Wallet: wallet, SchemaVersion: version, Trades: make([]tradeWire, len(trades))}
	sigs := make(map[string]bool, len(trades))
	for i, t := range trades {
		out.Trades[i] = toTradeWire(t)
		sigs[t.Signature.String()] = true
	}
	out.Signatures = make([]string, 0, len(sigs))
	for sig := range sigs {
		out.Signatures = append(out.Signatures, sig)
	}
	return out
}

// compactActions is the fixed action vocabulary v0.7.2-compact indexes into.
var compactActions = []string{"sell", "buy"}

func compactActionIndex(a model.Action) string {
	if a == model.ActionBuy {
		return "1"
	}
	return "0"
}

var compactFieldMap = []string{
	"timestamp", "signature", "action", "token", "amount",
	"price_usd", "value_usd", "pnl_usd", "priced", "dex", "tx_type",
}

type tradesCompactExport struct {
	Wallet        string              `json:"wallet"`
	SchemaVersion model.SchemaVersion `json:"schema_version"`
	FieldMap      []string            `json:"field_map"`
	Trades        [][]string          `json:"trades"`
	Constants     compactConstants    `json:"constants"`
	Summary       compactSummary      `json:"summary"`
}

type compactConstants struct {
	Actions []string `json:"actions"`
	SolMint string   `json:"sol_mint"`
}

type compactSummary struct {
	Total    int `json:"total"`
	Included int `json:"included"`
}

func nullDecimalOrEmpty(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func compactRow(t model.Trade) []string {
	return []string{
		t.BlockTime.UTC().Format(timeFormat),
		t.Signature.String(),
		compactActionIndex(t.Action),
		t.PrimaryTokenMint,
		t.Amount.String(),
		nullDecimalOrEmpty(t.PriceUSD),
		nullDecimalOrEmpty(t.ValueUSD),
		nullDecimalOrEmpty(t.RealizedPnLUSD),
		boolFlag(t.Priced),
		t.Dex,
		string(t.TxType),
	}
}

// buildTradesCompactExport encodes trades into the fixed-position-array
// v0.7.2-compact wire shape, dropping the oldest trades if the encoded
// size still exceeds compactSizeBudget (most recent activity is what an
// LLM Action client is almost always asking about).
func buildTradesCompactExport(wallet string, trades []model.Trade) (tradesCompactExport, int) {
	total := len(trades)
	rows := make([][]string, len(trades))
	for i, t := range trades {
		rows[i] = compactRow(t)
	}

	out := tradesCompactExport{
		Wallet:        wallet,
		SchemaVersion: model.SchemaTradesCompact,
		FieldMap:      compactFieldMap,
		Trades:        rows,
		Constants:     compactConstants{Actions: compactActions, SolMint: model.NativeSolMint},
		Summary:       compactSummary{Total: total, Included: len(rows)},
	}

	dropped := 0
	for {
		out.Summary.Included = len(out.Trades)
		encoded, err := json.Marshal(out)
		if err != nil || len(encoded) <= compactSizeBudget || len(out.Trades) == 0 {
			break
		}
		// drop the oldest trade (rows are in ascending time order)
		out.Trades = out.Trades[1:]
		dropped++
	}
	if dropped > 0 {
		slog.Warn("trades export: truncated to fit compact size budget",
			"wallet", wallet, "total", total, "included", len(out.Trades), "dropped", dropped)
	}
	return out, dropped
}

// positionWire mirrors spec.md §3's Position + PositionPnL join.
type positionWire struct {
	PositionID       string                    `json:"position_id"`
	Mint             string                    `json:"mint"`
	Symbol           string                    `json:"symbol,omitempty"`
	Balance          string                    `json:"balance"`
	CostBasisUSD     string                    `json:"cost_basis_usd"`
	CostBasisConf    model.CostBasisConfidence `json:"cost_basis_confidence"`
	Consistency      model.PositionConsistency `json:"consistency"`
	OpenedAt         string                    `json:"opened_at"`
	LastTradeAt      string                    `json:"last_trade_at"`
	CurrentPriceUSD  decimal.NullDecimal       `json:"current_price_usd"`
	CurrentValueUSD  decimal.NullDecimal       `json:"current_value_usd"`
	UnrealizedPnLUSD decimal.NullDecimal       `json:"unrealized_pnl_usd"`
	UnrealizedPnLPct decimal.NullDecimal       `json:"unrealized_pnl_pct"`
	PriceConfidence  model.Confidence          `json:"price_confidence"`
	PriceAgeSeconds  int64                     `json:"price_age_seconds"`
	PriceSource      string                    `json:"price_source,omitempty"`
}

func toPositionWire(p model.PositionPnL) positionWire {
	return positionWire{
		PositionID:       p.PositionID,
		Mint:             p.Mint,
		Symbol:           p.Symbol,
		Balance:          p.Balance.String(),
		CostBasisUSD:     p.CostBasisUSD.String(),
		CostBasisConf:    p.CostBasisConf,
		Consistency:      p.Consistency,
		OpenedAt:         p.OpenedAt.UTC().Format(timeFormat),
		LastTradeAt:      p.LastTradeAt.UTC().Format(timeFormat),
		CurrentPriceUSD:  p.CurrentPriceUSD,
		CurrentValueUSD:  p.CurrentValueUSD,
		UnrealizedPnLUSD: p.UnrealizedPnLUSD,
		UnrealizedPnLPct: p.UnrealizedPnLPct,
		PriceConfidence:  p.PriceConfidence,
		PriceAgeSeconds:  p.PriceAgeSeconds,
		PriceSource:      p.PriceSource,
	}
}

type summaryWire struct {
	TotalValueUSD         decimal.NullDecimal `json:"total_value_usd"`
	TotalUnrealizedPnLUSD decimal.NullDecimal `json:"total_unrealized_pnl_usd"`
	TotalUnrealizedPnLPct decimal.NullDecimal `json:"total_unrealized_pnl_pct"`
	StalePriceCount       int                 `json:"stale_price_count"`
}

// positionsExport is the v0.8.0-prices envelope served by
// GET /v4/positions/export-gpt/{wallet}.
type positionsExport struct {
	Wallet        string              `json:"wallet"`
	SchemaVersion model.SchemaVersion `json:"schema_version"`
	Timestamp     string              `json:"timestamp"`
	Positions     []positionWire      `json:"positions"`
	Summary       summaryWire         `json:"summary"`
	PriceSources  map[string]string   `json:"price_sources"`
	Stale         bool                `json:"stale,omitempty"`
	AgeSeconds    int64               `json:"age_seconds,omitempty"`
}

func buildPositionsExport(snap model.PortfolioSnapshot) positionsExport {
	out := positionsExport{
		Wallet:        snap.Wallet,
		SchemaVersion: snap.SchemaVersion,
		Timestamp:     snap.Timestamp.UTC().Format(timeFormat),
		Positions:     make([]positionWire, len(snap.Positions)),
		Summary: summaryWire{
			TotalValueUSD:         snap.Summary.TotalValueUSD,
			TotalUnrealizedPnLUSD: snap.Summary.TotalUnrealizedPnLUSD,
			TotalUnrealizedPnLPct: snap.Summary.TotalUnrealizedPnLPct,
			StalePriceCount:       snap.Summary.StalePriceCount,
		},
		PriceSources: snap.PriceSources,
	}
	if out.PriceSources == nil {
		out.PriceSources = map[string]string{}
	}
	for i, p := range snap.Positions {
		out.Positions[i] = toPositionWire(p)
	}
	return out
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
