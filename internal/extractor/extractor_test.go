package extractor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/walletdigest/wdapi/internal/model"
)

const (
	wallet = "WalletAddr11111111111111111111111111111111"
	usdc   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	bonk   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func TestExtract_SwapEventBuy(t *testing.T) {
	tx := model.RawTransaction{
		Signature: "sig1",
		Slot:      100,
		BlockTime: time.Unix(1000, 0),
		SwapEvent: &model.SwapEvent{
			TokenIn:  model.TokenAmount{Mint: usdc, Amount: decimal.NewFromInt(50)},
			TokenOut: model.TokenAmount{Mint: bonk, Amount: decimal.NewFromInt(1000)},
			Source:   "jupiter",
		},
	}

	trades := Extract(wallet, tx)
	require.Len(t, trades, 1)
	require.Equal(t, model.ActionBuy, trades[0].Action)
	require.Equal(t, bonk, trades[0].PrimaryTokenMint)
	require.True(t, trades[0].Amount.Equal(decimal.NewFromInt(1000)))
}

func TestExtract_SwapEventSkippedWhenBothMintsAreReference(t *testing.T) {
	tx := model.RawTransaction{
		SwapEvent: &model.SwapEvent{
			TokenIn:  model.TokenAmount{Mint: usdc, Amount: decimal.NewFromInt(50)},
			TokenOut: model.TokenAmount{Mint: model.NativeSolMint, Amount: decimal.NewFromInt(1)},
		},
	}
	require.Empty(t, Extract(wallet, tx))
}

func TestExtract_FallbackSingleOutSingleIn(t *testing.T) {
	tx := model.RawTransaction{
		Signature: "sig2",
		TokenTransfers: []model.TokenTransfer{
			{Mint: bonk, From: wallet, To: "pool", Amount: decimal.NewFromInt(500)},
			{Mint: usdc, From: "pool", To: wallet, Amount: decimal.NewFromInt(25)},
		},
	}

	trades := Extract(wallet, tx)
	require.Len(t, trades, 1)
	require.Equal(t, model.ActionSell, trades[0].Action)
	require.Equal(t, bonk, trades[0].PrimaryTokenMint)
	require.Equal(t, model.TxTypeTransferImplied, trades[0].TxType)
}

func TestExtract_FallbackSumsMultipleOutsOfSameMint(t *testing.T) {
	tx := model.RawTransaction{
		Signature: "sig3",
		TokenTransfers: []model.TokenTransfer{
			{Mint: bonk, From: wallet, To: "pool-a", Amount: decimal.NewFromInt(300)},
			{Mint: bonk, From: wallet, To: "pool-b", Amount: decimal.NewFromInt(200)},
			{Mint: usdc, From: "pool", To: wallet, Amount: decimal.NewFromInt(25)},
		},
	}

	trades := Extract(wallet, tx)
	require.Len(t, trades, 1)
	require.True(t, trades[0].TokenIn.Amount.Equal(decimal.NewFromInt(500)))
}

func TestExtract_RejectsMultiDistinctMintSide(t *testing.T) {
	otherToken := "OtherToken1111111111111111111111111111111"
	tx := model.RawTransaction{
		Signature: "sig4",
		TokenTransfers: []model.TokenTransfer{
			{Mint: bonk, From: wallet, To: "pool-a", Amount: decimal.NewFromInt(300)},
			{Mint: otherToken, From: wallet, To: "pool-b", Amount: decimal.NewFromInt(200)},
			{Mint: usdc, From: "pool", To: wallet, Amount: decimal.NewFromInt(25)},
		},
	}
	require.Empty(t, Extract(wallet, tx), "a side with two genuinely distinct mints has no canonical price and must be rejected, not collapsed to the larger mint")
}

func TestExtract_RejectsMoreThanThreeLiteralTransfersOnOneSideEvenWhenSameMint(t *testing.T) {
	tx := model.RawTransaction{
		Signature: "sig5",
		TokenTransfers: []model.TokenTransfer{
			{Mint: bonk, From: wallet, To: "pool-a", Amount: decimal.NewFromInt(100)},
			{Mint: bonk, From: wallet, To: "pool-b", Amount: decimal.NewFromInt(100)},
			{Mint: bonk, From: wallet, To: "pool-c", Amount: decimal.NewFromInt(100)},
			{Mint: bonk, From: wallet, To: "pool-d", Amount: decimal.NewFromInt(100)},
			{Mint: usdc, From: "pool", To: wallet, Amount: decimal.NewFromInt(25)},
		},
	}
	require.Empty(t, Extract(wallet, tx), "four literal transfers exceed the n∈{1,2,3} shape even though they share one mint")
}

func TestExtract_DiscardsInvalidShapes(t *testing.T) {
	cases := []model.RawTransaction{
		{}, // 0/0
		{TokenTransfers: []model.TokenTransfer{{Mint: bonk, From: wallet, To: "pool", Amount: decimal.NewFromInt(1)}}},                                                 // 1/0
		{TokenTransfers: []model.TokenTransfer{{Mint: usdc, From: "pool", To: wallet, Amount: decimal.NewFromInt(1)}}},                                                 // 0/1
		{TokenTransfers: []model.TokenTransfer{
			{Mint: bonk, From: "a", To: wallet, Amount: decimal.NewFromInt(1)},
			{Mint: usdc, From: "b", To: wallet, Amount: decimal.NewFromInt(1)},
		}}, // 0 outs, 2 ins but no out side at all
	}
	for _, tx := range cases {
		require.Empty(t, Extract(wallet, tx))
	}
}

func TestExtract_DiscardsPairWithNoReferenceMint(t *testing.T) {
	otherToken := "OtherToken1111111111111111111111111111111"
	tx := model.RawTransaction{
		TokenTransfers: []model.TokenTransfer{
			{Mint: bonk, From: wallet, To: "pool", Amount: decimal.NewFromInt(1)},
			{Mint: otherToken, From: "pool", To: wallet, Amount: decimal.NewFromInt(1)},
		},
	}
	require.Empty(t, Extract(wallet, tx))
}
