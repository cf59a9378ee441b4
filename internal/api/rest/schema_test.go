package rest

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletdigest/wdapi/internal/model"
)

func makeTrade(i int, priced bool) model.Trade {
	return model.Trade{
		Wallet:           "wallet1",
		Signature:        model.Signature(fmt.Sprintf("sig%d", i)),
		BlockTime:        time.Unix(int64(1_700_000_000+i), 0),
		Action:           model.ActionBuy,
		PrimaryTokenMint: "Mint111",
		Amount:           decimal.NewFromInt(int64(i + 1)),
		Dex:              "raydium",
		TxType:           model.TxType("SWAP"),
		PriceUSD:         decimal.NewNullDecimal(decimal.NewFromFloat(1.23)),
		ValueUSD:         decimal.NewNullDecimal(decimal.NewFromFloat(4.56)),
		Priced:           priced,
	}
}

func TestBuildTradesExport_DedupesSignatures(t *testing.T) {
	trades := []model.Trade{makeTrade(1, true), makeTrade(1, true), makeTrade(2, true)}
	out := buildTradesExport("wallet1", model.SchemaTradesValue, trades)

	assert.Len(t, out.Trades, 3)
	assert.Len(t, out.Signatures, 2)
	assert.Equal(t, model.SchemaTradesValue, out.SchemaVersion)
}

func TestCompactActionIndex_BuyAndSell(t *testing.T) {
	assert.Equal(t, "1", compactActionIndex(model.ActionBuy))
	assert.Equal(t, "0", compactActionIndex(model.ActionSell))
}

func TestNullDecimalOrEmpty_InvalidYieldsEmptyString(t *testing.T) {
	assert.Equal(t, "", nullDecimalOrEmpty(decimal.NullDecimal{Valid: false}))
	assert.Equal(t, "4.56", nullDecimalOrEmpty(decimal.NewNullDecimal(decimal.NewFromFloat(4.56))))
}

func TestBuildTradesCompactExport_FieldMapOrderMatchesRowOrder(t *testing.T) {
	trades := []model.Trade{makeTrade(1, true)}
	out, dropped := buildTradesCompactExport("wallet1", trades)

	require.Equal(t, 0, dropped)
	require.Len(t, out.Trades, 1)
	require.Equal(t, len(compactFieldMap), len(out.Trades[0]))

	// action is index 2 in the field map/row
	assert.Equal(t, "action", out.FieldMap[2])
	assert.Equal(t, "1", out.Trades[0][2])
	assert.Equal(t, model.NativeSolMint, out.Constants.SolMint)
	assert.Equal(t, []string{"sell", "buy"}, out.Constants.Actions)
}

func TestBuildTradesCompactExport_NoTruncationUnderBudget(t *testing.T) {
	trades := make([]model.Trade, 10)
	for i := range trades {
		trades[i] = makeTrade(i, true)
	}
	out, dropped := buildTradesCompactExport("wallet1", trades)

	assert.Equal(t, 0, dropped)
	assert.Equal(t, 10, out.Summary.Total)
	assert.Equal(t, 10, out.Summary.Included)
}

func TestBuildTradesCompactExport_TruncatesOldestFirstWhenOverBudget(t *testing.T) {
	// enough rows with a long dex field to blow well past the budget.
	longDex := make([]byte, 4096)
	for i := range longDex {
		longDex[i] = 'x'
	}
	trades := make([]model.Trade, 200)
	for i := range trades {
		tr := makeTrade(i, true)
		tr.Dex = string(longDex)
		trades[i] = tr
	}

	out, dropped := buildTradesCompactExport("wallet1", trades)

	require.Greater(t, dropped, 0)
	assert.Equal(t, 200, out.Summary.Total)
	assert.Less(t, out.Summary.Included, 200)
	assert.Equal(t, len(out.Trades), out.Summary.Included)

	encoded, err := json.Marshal(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(encoded), compactSizeBudget)

	// oldest trades (lowest index, earliest timestamp) are the ones dropped;
	// the most recent trade must survive.
	lastSig := trades[len(trades)-1].Signature.String()
	found := false
	for _, row := range out.Trades {
		if row[1] == lastSig {
			found = true
			break
		}
	}
	assert.True(t, found, "most recent trade should survive truncation")
}

func TestBuildPositionsExport_NilPriceSourcesBecomesEmptyObject(t *testing.T) {
	snap := model.PortfolioSnapshot{Wallet: "wallet1", SchemaVersion: model.SchemaPositionsV08}
	out := buildPositionsExport(snap)

	require.NotNil(t, out.PriceSources)
	encoded, err := json.Marshal(out.PriceSources)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(encoded))
}

func TestBuildPositionsExport_CarriesPositionRows(t *testing.T) {
	snap := model.PortfolioSnapshot{
		Wallet:        "wallet1",
		SchemaVersion: model.SchemaPositionsV08,
		Positions: []model.PositionPnL{
			{Position: model.Position{PositionID: "p1", Mint: "Mint111", Balance: decimal.NewFromInt(5)}},
		},
	}
	out := buildPositionsExport(snap)

	require.Len(t, out.Positions, 1)
	assert.Equal(t, "p1", out.Positions[0].PositionID)
}
