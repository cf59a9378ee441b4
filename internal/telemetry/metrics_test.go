package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletdigest/wdapi/internal/telemetry/otel"
)

func newTestTelemetry() (*otel.Telemetry, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &otel.Telemetry{MeterProvider: mp, Meter: mp.Meter("test")}, reader
}

func TestNew_RegistersEveryMetricFamilyWithoutError(t *testing.T) {
	tel, reader := newTestTelemetry()
	m := New(tel)
	require.NotNil(t, m)

	m.RequestReceived(context.Background(), "/health")
	m.CacheHit(context.Background(), "trades")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.NotEmpty(t, rm.ScopeMetrics)
}

func TestNew_NilTelemetryYieldsNilSafeMetrics(t *testing.T) {
	m := New(nil)
	require.NotNil(t, m)

	// none of these should panic with no meter configured
	m.RequestReceived(context.Background(), "/health")
	m.AuthFailure(context.Background())
	m.ResponseStatus(context.Background(), "/health", 500)
	m.UpstreamCall(context.Background(), "solana-rpc")
	m.UpstreamRateLimited(context.Background(), "solana-rpc")
	m.ExtractorFallback(context.Background(), "raydium")
	m.CacheHit(context.Background(), "trades")
	m.CacheMiss(context.Background(), "trades")
	m.CacheStaleServe(context.Background(), "trades")
	m.RefreshTriggered(context.Background(), "trades")
	m.RefreshFailed(context.Background(), "trades")
	m.StreamOpened(context.Background())
	m.StreamClosed(context.Background())
	m.PipelineStarted(context.Background())
	m.PipelineFinished(context.Background())
	m.PhaseDuration(context.Background(), "extract-trades", 1.5)
	m.RequestDuration(context.Background(), "/health", 0.1)
}

func TestNilMetrics_AllMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestReceived(context.Background(), "/health")
		m.StreamOpened(context.Background())
		m.PipelineStarted(context.Background())
		m.PhaseDuration(context.Background(), "fetch-signatures", 0.2)
	})
}
