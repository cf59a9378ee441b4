package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/walletdigest/wdapi/internal/telemetry/otel"
)

func newTestTracker(t *testing.T) (*APITracker, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tel := &otel.Telemetry{Meter: provider.Meter("test")}

	tracker, err := NewAPITracker(tel)
	require.NoError(t, err)
	return tracker, reader
}

func activeRequestsValue(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "wallet_active_requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				return 0
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// InstrumentCall must end the span, and settle the active-requests gauge
// back to zero, exactly once per call regardless of whether fn errors —
// a prior version called EndSpan a second time on the error path via an
// unconditional deferred call, double-decrementing the gauge.
func TestInstrumentCall_ErroringCallSettlesActiveRequestsOnce(t *testing.T) {
	tracker, reader := newTestTracker(t)

	err := tracker.InstrumentCall(context.Background(), "solana", "GetTransaction", func(ctx context.Context) error {
		require.Equal(t, int64(1), activeRequestsValue(t, reader))
		return errors.New("boom")
	})

	require.EqualError(t, err, "boom")
	require.Equal(t, int64(0), activeRequestsValue(t, reader))
}

func TestInstrumentCall_SuccessfulCallSettlesActiveRequests(t *testing.T) {
	tracker, reader := newTestTracker(t)

	err := tracker.InstrumentCall(context.Background(), "solspot", "FetchSOLUSD", func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int64(0), activeRequestsValue(t, reader))
}
