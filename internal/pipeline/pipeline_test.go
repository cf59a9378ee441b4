package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/oracle"
)

type fakeSpot struct {
	price decimal.Decimal
	err   error
}

func (f *fakeSpot) FetchSOLUSD(ctx context.Context) (decimal.Decimal, error) {
	return f.price, f.err
}

const bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func TestPhaseWeights_SumToOneHundred(t *testing.T) {
	var sum float64
	for _, p := range phaseOrder {
		sum += phaseWeight[p]
	}
	require.Equal(t, float64(100), sum)
}

func TestWeightBefore_IsCumulativeAcrossPhases(t *testing.T) {
	require.Equal(t, float64(0), weightBefore(PhaseFetchSignatures))
	require.Equal(t, float64(15), weightBefore(PhaseFetchTransactions))
	require.Equal(t, float64(50), weightBefore(PhaseExtractTrades))
	require.Equal(t, float64(85), weightBefore(PhaseComputePositions))
	require.Equal(t, float64(95), weightBefore(PhaseComputeUnrealized))
}

func TestSolAndTokenLegs_IdentifiesEitherSide(t *testing.T) {
	sol := model.TokenAmount{Mint: model.NativeSolMint, Amount: decimal.NewFromInt(2)}
	tok := model.TokenAmount{Mint: bonk, Amount: decimal.NewFromInt(1000)}

	solLeg, tokenLeg, ok := solAndTokenLegs(model.Trade{TokenIn: sol, TokenOut: tok})
	require.True(t, ok)
	require.Equal(t, model.NativeSolMint, solLeg.Mint)
	require.Equal(t, bonk, tokenLeg.Mint)

	solLeg2, tokenLeg2, ok2 := solAndTokenLegs(model.Trade{TokenIn: tok, TokenOut: sol})
	require.True(t, ok2)
	require.Equal(t, model.NativeSolMint, solLeg2.Mint)
	require.Equal(t, bonk, tokenLeg2.Mint)
}

func TestSolAndTokenLegs_FalseWhenNeitherLegIsSOL(t *testing.T) {
	usdc := model.TokenAmount{Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Amount: decimal.NewFromInt(1)}
	tok := model.TokenAmount{Mint: bonk, Amount: decimal.NewFromInt(1)}
	_, _, ok := solAndTokenLegs(model.Trade{TokenIn: usdc, TokenOut: tok})
	require.False(t, ok)
}

func TestPriceTrade_DerivesSwapImpliedPriceFromSOLLeg(t *testing.T) {
	o := oracle.New(oracle.DefaultConfig(), &fakeSpot{price: decimal.NewFromInt(150)}, nil)
	p := &Pipeline{oracle: o, cfg: DefaultConfig()}

	trade := model.Trade{
		PrimaryTokenMint: bonk,
		TokenIn:          model.TokenAmount{Mint: model.NativeSolMint, Amount: decimal.NewFromInt(2)},
		TokenOut:         model.TokenAmount{Mint: bonk, Amount: decimal.NewFromInt(1000)},
		Amount:           decimal.NewFromInt(1000),
	}

	p.priceTrade(context.Background(), &trade)

	require.True(t, trade.Priced)
	require.Equal(t, model.ConfidenceHigh, trade.Confidence)
	require.True(t, trade.PriceSOL.Equal(decimal.NewFromFloat(0.002))) // 2 SOL / 1000 tokens
	wantPriceUSD := decimal.NewFromFloat(0.002).Mul(decimal.NewFromInt(150))
	require.True(t, trade.PriceUSD.Decimal.Equal(wantPriceUSD))
}

func TestPriceTrade_FallsThroughToOracleWhenNeitherLegIsSOL(t *testing.T) {
	o := oracle.New(oracle.DefaultConfig(), &fakeSpot{price: decimal.NewFromInt(150)}, nil)
	o.RecordSwapImplied(bonk, 500, decimal.NewFromFloat(0.00003))
	p := &Pipeline{oracle: o, cfg: DefaultConfig()}

	usdc := model.TokenAmount{Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Amount: decimal.NewFromInt(10)}
	trade := model.Trade{
		PrimaryTokenMint: bonk,
		Slot:             500,
		TokenIn:          usdc,
		TokenOut:         model.TokenAmount{Mint: bonk, Amount: decimal.NewFromInt(300000)},
		Amount:           decimal.NewFromInt(300000),
	}

	p.priceTrade(context.Background(), &trade)

	require.True(t, trade.Priced)
	require.Equal(t, model.ConfidenceHigh, trade.Confidence)
	require.True(t, trade.PriceUSD.Decimal.Equal(decimal.NewFromFloat(0.00003)))
}

func TestTimeoutError_MentionsWallet(t *testing.T) {
	err := &TimeoutError{Wallet: "abc123"}
	require.Contains(t, err.Error(), "abc123")
}

func TestWrapTimeout_ReturnsTimeoutErrorOnDeadlineExceeded(t *testing.T) {
	p := &Pipeline{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	wrapped := p.wrapTimeout(ctx, "abc123", errors.New("some upstream error"))
	var timeoutErr *TimeoutError
	require.ErrorAs(t, wrapped, &timeoutErr)
	require.Equal(t, "abc123", timeoutErr.Wallet)
}

func TestWrapTimeout_PassesThroughNonDeadlineErrors(t *testing.T) {
	p := &Pipeline{}
	original := errors.New("boom")
	wrapped := p.wrapTimeout(context.Background(), "abc123", original)
	require.Equal(t, original, wrapped)
}
