package costbasis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/walletdigest/wdapi/internal/model"
)

const (
	wallet = "Wallet11111111111111111111111111111111111"
	bonk   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func trade(action model.Action, amount, valueUSD, priceUSD float64, t time.Time, slot uint64) model.Trade {
	tr := model.Trade{
		Wallet:           wallet,
		PrimaryTokenMint: bonk,
		Action:           action,
		Amount:           decimal.NewFromFloat(amount),
		BlockTime:        t,
		Slot:             slot,
		ValueUSD:         decimal.NewNullDecimal(decimal.NewFromFloat(valueUSD)),
		PriceUSD:         decimal.NewNullDecimal(decimal.NewFromFloat(priceUSD)),
		Priced:           true,
	}
	return tr
}

func TestEngine_FIFOPartialLotConsumption(t *testing.T) {
	base := time.Unix(1000, 0)
	trades := []model.Trade{
		trade(model.ActionBuy, 100, 100, 1, base, 1),           // cost/unit = 1
		trade(model.ActionBuy, 100, 300, 3, base.Add(time.Minute), 2), // cost/unit = 3
		trade(model.ActionSell, 150, 0, 2, base.Add(2*time.Minute), 3), // sells 100@1 + 50@3
	}

	out, positions := (&Engine{}).Run(wallet, trades)

	require.Len(t, positions, 1)
	require.True(t, positions[0].Balance.Equal(decimal.NewFromInt(50)))
	require.True(t, positions[0].CostBasisUSD.Equal(decimal.NewFromInt(150))) // 50 remaining @ 3

	sell := out[2]
	// proceeds = 150*2=300, cost = 100*1 + 50*3 = 250, pnl = 50
	require.True(t, sell.RealizedPnLUSD.Decimal.Equal(decimal.NewFromInt(50)))
}

func TestEngine_OverSellMarksUncovered(t *testing.T) {
	base := time.Unix(1000, 0)
	trades := []model.Trade{
		trade(model.ActionBuy, 50, 50, 1, base, 1),
		trade(model.ActionSell, 80, 0, 1, base.Add(time.Minute), 2),
	}

	_, positions := (&Engine{}).Run(wallet, trades)
	require.Empty(t, positions) // fully consumed, no balance left

	// an over-sell spread across two lots also consumes every lot.
	trades2 := []model.Trade{
		trade(model.ActionBuy, 50, 50, 1, base, 1),
		trade(model.ActionBuy, 30, 30, 1, base.Add(30*time.Second), 1),
		trade(model.ActionSell, 100, 0, 1, base.Add(time.Minute), 2),
	}
	_, positions2 := (&Engine{}).Run(wallet, trades2)
	require.Empty(t, positions2)

	// a buy after the over-sell leaves a position with lots, and the
	// uncovered-sells flag surfaces on it.
	trades3 := []model.Trade{
		trade(model.ActionBuy, 50, 50, 1, base, 1),
		trade(model.ActionSell, 80, 0, 1, base.Add(time.Minute), 2),
		trade(model.ActionBuy, 30, 30, 1, base.Add(2*time.Minute), 3),
	}
	_, positions3 := (&Engine{}).Run(wallet, trades3)
	require.Len(t, positions3, 1)
	require.Equal(t, model.PositionConsistencyUncoveredSells, positions3[0].Consistency)
}

func TestEngine_ReopensPositionAfterFullyClosing(t *testing.T) {
	base := time.Unix(1000, 0)
	trades := []model.Trade{
		trade(model.ActionBuy, 100, 100, 1, base, 1),
		trade(model.ActionSell, 100, 0, 1, base.Add(time.Minute), 2),
		trade(model.ActionBuy, 50, 100, 2, base.Add(2*time.Minute), 3),
	}

	_, positions := (&Engine{}).Run(wallet, trades)
	require.Len(t, positions, 1)
	require.True(t, positions[0].OpenedAt.Equal(base.Add(2*time.Minute)))
	require.True(t, positions[0].Balance.Equal(decimal.NewFromInt(50)))
}

func TestEngine_UnknownCostBasisWhenBuyHasNoValue(t *testing.T) {
	base := time.Unix(1000, 0)
	tr := trade(model.ActionBuy, 100, 0, 0, base, 1)
	tr.ValueUSD = decimal.NullDecimal{} // unpriced buy

	_, positions := (&Engine{}).Run(wallet, []model.Trade{tr})
	require.Len(t, positions, 1)
	require.Equal(t, model.CostBasisUnknown, positions[0].CostBasisConf)
}
