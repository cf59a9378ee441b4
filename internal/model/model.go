// Package model holds the canonical data types shared across the ingestion
// pipeline: raw chain data, extracted trades, FIFO lots, and the derived
// position/P&L views served over HTTP.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action classifies a Trade relative to the wallet that produced it.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Confidence tags the provenance of a resolved USD price.
type Confidence string

const (
	ConfidenceHigh        Confidence = "high"
	ConfidenceEstimated   Confidence = "est"
	ConfidenceStale       Confidence = "stale"
	ConfidenceUnavailable Confidence = "unavailable"
)

// TxType distinguishes how a RawTransaction yielded a Trade.
type TxType string

const (
	TxTypeSwap            TxType = "swap"
	TxTypeLiquidity       TxType = "liquidity"
	TxTypeTransferImplied TxType = "transfer-implied"
)

// NativeSolMint is the pseudo-mint address used to represent native SOL.
const NativeSolMint = "So11111111111111111111111111111111111111111"

// WrappedSolMint is the SPL mint for wrapped SOL.
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// StableMints are USD-pegged mints treated as SOL's counterpart for primary
// token classification (§4.4).
var StableMints = map[string]bool{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": true, // USDT
}

// IsSolMint reports whether mint is native or wrapped SOL.
func IsSolMint(mint string) bool {
	return mint == NativeSolMint || mint == WrappedSolMint
}

// IsSolOrStable reports whether mint is SOL or a recognized stablecoin —
// i.e. a valid counterparty for primary-token classification.
func IsSolOrStable(mint string) bool {
	return IsSolMint(mint) || StableMints[mint]
}

// Signature identifies a transaction on-chain.
type Signature string

func (s Signature) String() string { return string(s) }

// TokenAmount is a leg of a swap event or a reconstructed transfer.
type TokenAmount struct {
	Mint    string
	Symbol  string
	Amount  decimal.Decimal
	RawDiff int64 // signed raw-unit delta; the fallback reconstruction does not set or read it
}

// SwapEvent is the structured swap representation some providers attach to
// a transaction, saving the extractor from reconstructing transfers.
type SwapEvent struct {
	TokenIn  TokenAmount
	TokenOut TokenAmount
	Source   string // DEX tag, e.g. "jupiter", "raydium"
}

// TokenTransfer is a raw SPL-token balance change attached to a transaction.
type TokenTransfer struct {
	Mint   string
	From   string
	To     string
	Amount decimal.Decimal
}

// NativeTransfer is a raw lamport balance change.
type NativeTransfer struct {
	From   string
	To     string
	Amount decimal.Decimal // in SOL, not lamports
}

// RawTransaction is the hydrated provider payload. Immutable once received.
type RawTransaction struct {
	Signature       Signature
	Slot            uint64
	BlockTime       time.Time
	SwapEvent       *SwapEvent
	TokenTransfers  []TokenTransfer
	NativeTransfers []NativeTransfer
	Source          string
	FeeLamports     uint64
}

// Trade is the canonical result of extraction, enriched in place by the
// Price Oracle and Cost-Basis Engine as the pipeline progresses.
type Trade struct {
	Wallet    string
	Signature Signature
	Slot      uint64
	BlockTime time.Time
	// IntraTxIndex breaks ties when multiple trades share (BlockTime, Slot),
	// e.g. two swaps extracted from the same transaction.
	IntraTxIndex int

	Action           Action
	TokenIn          TokenAmount
	TokenOut         TokenAmount
	PrimaryTokenMint string
	Amount           decimal.Decimal

	Dex    string
	TxType TxType

	// Enrichment, populated by the Price Oracle (C5).
	PriceSOL   decimal.Decimal
	PriceUSD   decimal.NullDecimal
	ValueUSD   decimal.NullDecimal
	Priced     bool
	Confidence Confidence

	// Populated by the Cost-Basis Engine (C6); only meaningful on SELLs.
	RealizedPnLUSD decimal.NullDecimal
}

// SortKey orders trades per spec.md §3: (block_time, slot, intra_tx_index).
func (t Trade) SortKey() (time.Time, uint64, int) {
	return t.BlockTime, t.Slot, t.IntraTxIndex
}

// Lot is a FIFO cost-basis unit. Opened by BUYs, consumed by SELLs.
type Lot struct {
	Mint            string
	RemainingAmount decimal.Decimal
	// CostPerUnit is nil when the opening BUY had no resolved USD value;
	// the owning Position stays CostBasisUnknown while this lot has a remaining balance.
	CostPerUnit      decimal.NullDecimal
	AcquiredAt       time.Time
	SourceSignature  Signature
}

// CostBasisConfidence reflects whether every open lot in a position has a
// known cost-per-unit.
type CostBasisConfidence string

const (
	CostBasisKnown   CostBasisConfidence = "known"
	CostBasisUnknown CostBasisConfidence = "unknown"
)

// PositionConsistency flags anomalies discovered while folding trades into
// lot queues.
type PositionConsistency string

const (
	PositionConsistencyOK               PositionConsistency = "ok"
	PositionConsistencyUncoveredSells   PositionConsistency = "has_uncovered_sells"
)

// Position is the derived, currently-open view over a (wallet, mint) lot
// queue. PositionID is deterministic: first8(wallet)::first8(mint)::opened_at_unix.
type Position struct {
	PositionID string
	Wallet     string
	Mint       string
	Symbol     string

	Balance       decimal.Decimal
	CostBasisUSD  decimal.Decimal
	CostBasisConf CostBasisConfidence
	Consistency   PositionConsistency

	OpenedAt    time.Time
	LastTradeAt time.Time
}

// PositionPnL joins a Position with a resolved current price.
type PositionPnL struct {
	Position

	CurrentPriceUSD     decimal.NullDecimal
	CurrentValueUSD     decimal.NullDecimal
	UnrealizedPnLUSD    decimal.NullDecimal
	UnrealizedPnLPct    decimal.NullDecimal
	PriceConfidence     Confidence
	PriceAgeSeconds     int64
	PriceSource         string
}

// PortfolioSummary aggregates a PortfolioSnapshot's positions.
type PortfolioSummary struct {
	TotalValueUSD           decimal.NullDecimal
	TotalUnrealizedPnLUSD   decimal.NullDecimal
	TotalUnrealizedPnLPct   decimal.NullDecimal
	StalePriceCount         int
}

// SchemaVersion enumerates wire-format versions for trades and positions
// exports (spec.md §4.10, §6.2).
type SchemaVersion string

const (
	SchemaTradesFull    SchemaVersion = "v0.7.0"
	SchemaTradesValue   SchemaVersion = "v0.7.1-trades-value"
	SchemaTradesCompact SchemaVersion = "v0.7.2-compact"
	SchemaPositionsV08  SchemaVersion = "v0.8.0-prices"
)

// PortfolioSnapshot is the top-level artifact served by
// GET /v4/positions/export-gpt/{wallet}.
type PortfolioSnapshot struct {
	Wallet        string
	SchemaVersion SchemaVersion
	Timestamp     time.Time
	Positions     []PositionPnL
	Summary       PortfolioSummary
	PriceSources  map[string]string
}

// CachedSnapshot wraps any cached artifact with freshness metadata.
type CachedSnapshot[T any] struct {
	Value    T
	CachedAt time.Time
	TTL      time.Duration
}

// Stale reports whether the entry has outlived its TTL as of now.
func (c CachedSnapshot[T]) Stale(now time.Time) bool {
	return now.Sub(c.CachedAt) > c.TTL
}

// AgeSeconds is the entry's age as of now, in whole seconds.
func (c CachedSnapshot[T]) AgeSeconds(now time.Time) int64 {
	return int64(now.Sub(c.CachedAt).Seconds())
}
