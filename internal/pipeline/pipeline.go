// Package pipeline implements the Pipeline Orchestrator (C9): it wires the
// Signature Pager (C2) through the Transaction Hydrator (C3), Swap
// Extractor (C4), Price Oracle (C5), and Cost-Basis/Unrealized engines
// (C6/C7) into a single cancellable run that reports weighted progress
// events as it goes (spec.md §4.9).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/clients/solanarpc"
	"github.com/walletdigest/wdapi/internal/costbasis"
	"github.com/walletdigest/wdapi/internal/extractor"
	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/oracle"
	"github.com/walletdigest/wdapi/internal/telemetry"
)

// Phase names spec.md §4.9 assigns progress weights to.
type Phase string

const (
	PhaseFetchSignatures   Phase = "fetch-signatures"
	PhaseFetchTransactions Phase = "fetch-transactions"
	PhaseExtractTrades     Phase = "extract-trades"
	PhaseComputePositions  Phase = "compute-positions"
	PhaseComputeUnrealized Phase = "compute-unrealized"
)

var phaseWeight = map[Phase]float64{
	PhaseFetchSignatures:   15,
	PhaseFetchTransactions: 35,
	PhaseExtractTrades:     35,
	PhaseComputePositions:  10,
	PhaseComputeUnrealized: 5,
}

var phaseOrder = []Phase{
	PhaseFetchSignatures, PhaseFetchTransactions, PhaseExtractTrades,
	PhaseComputePositions, PhaseComputeUnrealized,
}

func weightBefore(p Phase) float64 {
	var sum float64
	for _, ph := range phaseOrder {
		if ph == p {
			return sum
		}
		sum += phaseWeight[ph]
	}
	return sum
}

// ProgressEvent reports cumulative completion across the whole run.
type ProgressEvent struct {
	Phase      Phase
	Percentage float64
	ItemsDone  int
	ItemsTotal int // 0 means unknown
	Message    string
	// NewTrades holds the trades extracted since the previous progress
	// event, populated only during PhaseExtractTrades batch boundaries — a
	// streaming transport can forward these incrementally instead of
	// waiting for the whole run to finish (spec.md §4.11's "trades" event).
	NewTrades []model.Trade
}

// Result is everything a pipeline run produces for one wallet.
type Result struct {
	Trades       []model.Trade
	Positions    []model.Position
	PositionsPnL []model.PositionPnL
	Summary      model.PortfolioSummary
}

// Config bounds one run (spec.md §6.1).
type Config struct {
	MaxPages   int
	Timeout    time.Duration
	HighBudget time.Duration // max price age tolerated at ConfidenceHigh
	EstBudget  time.Duration // max price age tolerated at ConfidenceEstimated
}

func DefaultConfig() Config {
	return Config{
		MaxPages:   0,
		Timeout:    120 * time.Second,
		HighBudget: 60 * time.Second,
		EstBudget:  5 * time.Minute,
	}
}

// Pipeline composes C1-C7 for repeated runs against different wallets.
type Pipeline struct {
	client  *solanarpc.Client
	oracle  *oracle.Oracle
	engine  *costbasis.Engine
	cfg     Config
	metrics *telemetry.Metrics
}

func New(client *solanarpc.Client, oc *oracle.Oracle, cfg Config) *Pipeline {
	return &Pipeline{client: client, oracle: oc, engine: costbasis.NewEngine(), cfg: cfg}
}

// SetMetrics wires per-phase duration and in-flight-run gauges (C12). m may
// be nil, in which case Run records nothing.
func (p *Pipeline) SetMetrics(m *telemetry.Metrics) { p.metrics = m }

// TimeoutError is returned when a run exceeds its wall-clock budget.
type TimeoutError struct{ Wallet string }

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pipeline: run for wallet %s exceeded its timeout", e.Wallet)
}

// Run executes the full C2→C7 chain for wallet. onProgress, if non-nil, is
// invoked with cumulative ProgressEvents throughout; it must not block
// meaningfully, since it is called from the hot path.
func (p *Pipeline) Run(ctx context.Context, wallet string, walletPub solana.PublicKey, onProgress func(ProgressEvent)) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if onProgress == nil {
		onProgress = func(ProgressEvent) {}
	}

	p.metrics.PipelineStarted(ctx)
	defer p.metrics.PipelineFinished(ctx)

	phaseStart := time.Now()
	timePhase := func(phase Phase) {
		p.metrics.PhaseDuration(ctx, string(phase), time.Since(phaseStart).Seconds())
		phaseStart = time.Now()
	}

	sigs, err := p.fetchSignatures(ctx, walletPub, onProgress)
	if err != nil {
		return Result{}, p.wrapTimeout(ctx, wallet, err)
	}
	timePhase(PhaseFetchSignatures)

	txs, err := p.fetchTransactions(ctx, sigs, onProgress)
	if err != nil {
		return Result{}, p.wrapTimeout(ctx, wallet, err)
	}
	timePhase(PhaseFetchTransactions)

	trades := p.extractTrades(ctx, wallet, txs, onProgress)
	if err := ctx.Err(); err != nil {
		return Result{}, p.wrapTimeout(ctx, wallet, err)
	}
	timePhase(PhaseExtractTrades)

	trades, positions := p.computePositions(ctx, wallet, trades, onProgress)
	timePhase(PhaseComputePositions)

	positionsPnL, summary := p.computeUnrealized(ctx, positions, onProgress)
	timePhase(PhaseComputeUnrealized)

	return Result{
		Trades:       trades,
		Positions:    positions,
		PositionsPnL: positionsPnL,
		Summary:      summary,
	}, nil
}

func (p *Pipeline) wrapTimeout(ctx context.Context, wallet string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Wallet: wallet}
	}
	return err
}

func (p *Pipeline) fetchSignatures(ctx context.Context, wallet solana.PublicKey, onProgress func(ProgressEvent)) ([]solana.Signature, error) {
	pager := solanarpc.NewPager(p.client, wallet)
	var all []solana.Signature
	var walkErr error

	weight := phaseWeight[PhaseFetchSignatures]
	before := weightBefore(PhaseFetchSignatures)

	pager.Walk(ctx, p.cfg.MaxPages, func(page solanarpc.Page) bool {
		select {
		case <-ctx.Done():
			walkErr = ctx.Err()
			return false
		default:
		}
		all = append(all, page.Signatures...)
		onProgress(ProgressEvent{
			Phase:      PhaseFetchSignatures,
			Percentage: before + weight*0.5, // pager has no known total; report mid-phase while paging
			ItemsDone:  len(all),
			Message:    "fetching signatures",
		})
		return true
	})
	onProgress(ProgressEvent{Phase: PhaseFetchSignatures, Percentage: before + weight, ItemsDone: len(all), Message: "signatures fetched"})

	if walkErr != nil {
		return nil, walkErr
	}
	return all, nil
}

func (p *Pipeline) fetchTransactions(ctx context.Context, sigs []solana.Signature, onProgress func(ProgressEvent)) ([]*model.RawTransaction, error) {
	weight := phaseWeight[PhaseFetchTransactions]
	before := weightBefore(PhaseFetchTransactions)

	hydrator := solanarpc.NewHydrator(p.client)
	result, err := hydrator.Hydrate(ctx, sigs, func(done, total int) {
		frac := 0.0
		if total > 0 {
			frac = float64(done) / float64(total)
		}
		onProgress(ProgressEvent{
			Phase:      PhaseFetchTransactions,
			Percentage: before + weight*frac,
			ItemsDone:  done,
			ItemsTotal: total,
			Message:    "hydrating transactions",
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.RawTransaction, len(sigs))
	for i, tx := range result.Transactions {
		if tx == nil {
			continue
		}
		out[i] = solanarpc.ToRawTransaction(sigs[i], tx)
	}
	onProgress(ProgressEvent{Phase: PhaseFetchTransactions, Percentage: before + weight, ItemsDone: len(sigs), ItemsTotal: len(sigs), Message: "transactions hydrated"})
	return out, nil
}

func (p *Pipeline) extractTrades(ctx context.Context, wallet string, txs []*model.RawTransaction, onProgress func(ProgressEvent)) []model.Trade {
	weight := phaseWeight[PhaseExtractTrades]
	before := weightBefore(PhaseExtractTrades)

	var trades []model.Trade
	var sinceLastEvent []model.Trade
	for i, tx := range txs {
		if tx == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return trades
		default:
		}

		extracted := extractor.Extract(wallet, *tx)
		for idx := range extracted {
			extracted[idx].IntraTxIndex = idx
			p.priceTrade(ctx, &extracted[idx])
		}
		trades = append(trades, extracted...)
		sinceLastEvent = append(sinceLastEvent, extracted...)

		if i%50 == 0 || i == len(txs)-1 {
			frac := float64(i+1) / float64(max(len(txs), 1))
			onProgress(ProgressEvent{
				Phase:      PhaseExtractTrades,
				Percentage: before + weight*frac,
				ItemsDone:  i + 1,
				ItemsTotal: len(txs),
				Message:    "extracting trades",
				NewTrades:  sinceLastEvent,
			})
			sinceLastEvent = nil
		}
	}
	onProgress(ProgressEvent{Phase: PhaseExtractTrades, Percentage: before + weight, ItemsDone: len(txs), ItemsTotal: len(txs), Message: "trades extracted"})
	return trades
}

// priceTrade resolves t's USD price. When the trade's counterparty leg is
// SOL itself, the price is derived directly from the swap ratio (the
// swap-implied layer, spec.md §4.5 layer 1) and recorded for future
// lookups of the same mint at a nearby slot; otherwise it falls through
// the oracle's normal layering for t.PrimaryTokenMint.
func (p *Pipeline) priceTrade(ctx context.Context, t *model.Trade) {
	solLeg, tokenLeg, haveSolLeg := solAndTokenLegs(*t)

	if haveSolLeg && !tokenLeg.Amount.IsZero() {
		t.PriceSOL = solLeg.Amount.Div(tokenLeg.Amount)
		solUSD := p.oracle.Resolve(ctx, model.NativeSolMint, t.Slot, t.BlockTime)
		if solUSD.PriceUSD.Valid {
			priceUSD := t.PriceSOL.Mul(solUSD.PriceUSD.Decimal)
			p.oracle.RecordSwapImplied(t.PrimaryTokenMint, t.Slot, priceUSD)
			t.PriceUSD = decimal.NewNullDecimal(priceUSD)
			t.ValueUSD = decimal.NewNullDecimal(t.Amount.Mul(priceUSD))
			t.Priced = true
			t.Confidence = model.ConfidenceHigh
			return
		}
	}

	res := p.oracle.Resolve(ctx, t.PrimaryTokenMint, t.Slot, t.BlockTime)
	t.Confidence = res.Confidence
	if res.PriceUSD.Valid {
		t.PriceUSD = res.PriceUSD
		t.ValueUSD = decimal.NewNullDecimal(t.Amount.Mul(res.PriceUSD.Decimal))
		t.Priced = true
	}
}

// solAndTokenLegs splits a trade's two legs into the SOL side and the
// primary-token side, when one of them is in fact SOL.
func solAndTokenLegs(t model.Trade) (sol, token model.TokenAmount, ok bool) {
	switch {
	case model.IsSolMint(t.TokenIn.Mint):
		return t.TokenIn, t.TokenOut, true
	case model.IsSolMint(t.TokenOut.Mint):
		return t.TokenOut, t.TokenIn, true
	default:
		return model.TokenAmount{}, model.TokenAmount{}, false
	}
}

func (p *Pipeline) computePositions(ctx context.Context, wallet string, trades []model.Trade, onProgress func(ProgressEvent)) ([]model.Trade, []model.Position) {
	weight := phaseWeight[PhaseComputePositions]
	before := weightBefore(PhaseComputePositions)

	// costbasis.Engine.Run sorts defensively itself; ordering is enforced
	// there, not duplicated here.
	outTrades, positions := p.engine.Run(wallet, trades)
	onProgress(ProgressEvent{Phase: PhaseComputePositions, Percentage: before + weight, ItemsDone: len(positions), Message: "positions computed"})
	return outTrades, positions
}

func (p *Pipeline) computeUnrealized(ctx context.Context, positions []model.Position, onProgress func(ProgressEvent)) ([]model.PositionPnL, model.PortfolioSummary) {
	weight := phaseWeight[PhaseComputeUnrealized]
	before := weightBefore(PhaseComputeUnrealized)

	pnl, summary := costbasis.Unrealized(ctx, positions, p.oracle, p.cfg.HighBudget, p.cfg.EstBudget)
	onProgress(ProgressEvent{Phase: PhaseComputeUnrealized, Percentage: before + weight, ItemsDone: len(pnl), Message: "unrealized pnl computed"})
	return pnl, summary
}
