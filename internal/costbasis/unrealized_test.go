package costbasis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/oracle"
)

type recordingResolver struct {
	gotAt time.Time
}

func (r *recordingResolver) Resolve(ctx context.Context, mint string, slot uint64, at time.Time) oracle.Result {
	r.gotAt = at
	return oracle.Result{
		PriceUSD:   decimal.NewNullDecimal(decimal.NewFromInt(2)),
		Confidence: model.ConfidenceHigh,
	}
}

func TestUnrealized_ResolvesAtCurrentTimeNotLastTradeTime(t *testing.T) {
	longAgo := time.Now().Add(-30 * 24 * time.Hour)
	positions := []model.Position{
		{Mint: "mint1", Balance: decimal.NewFromInt(10), LastTradeAt: longAgo},
	}
	resolver := &recordingResolver{}

	before := time.Now()
	Unrealized(context.Background(), positions, resolver, time.Minute, 5*time.Minute)
	after := time.Now()

	require.True(t, resolver.gotAt.After(before.Add(-time.Second)) && resolver.gotAt.Before(after.Add(time.Second)),
		"Resolve must be called with the current time, not the position's LastTradeAt (%s)", longAgo)
}
