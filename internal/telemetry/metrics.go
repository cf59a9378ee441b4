// Package telemetry defines the domain-specific metric families spec.md
// §4.12 names, built on top of the OpenTelemetry meter the teacher's
// internal/telemetry/otel package already provisions.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/walletdigest/wdapi/internal/telemetry/otel"
)

// Metrics holds every counter, gauge, and histogram the HTTP surface,
// streaming transport, cache, and pipeline report into. Every field is
// nil-safe: a nil *Metrics (telemetry disabled) or a field that failed to
// register both just skip the recording call.
type Metrics struct {
	requestsTotal      metric.Int64Counter
	authFailuresTotal  metric.Int64Counter
	responses4xxTotal  metric.Int64Counter
	responses5xxTotal  metric.Int64Counter
	upstreamCallsTotal metric.Int64Counter
	upstream429sTotal  metric.Int64Counter
	extractorFallbacks metric.Int64Counter

	cacheHitsTotal    metric.Int64Counter
	cacheMissesTotal  metric.Int64Counter
	cacheStaleServes  metric.Int64Counter
	refreshTriggers   metric.Int64Counter
	refreshErrors     metric.Int64Counter

	activeStreams    metric.Int64UpDownCounter
	inFlightPipelines metric.Int64UpDownCounter

	phaseDuration   metric.Float64Histogram
	requestDuration metric.Float64Histogram
}

// New registers every metric family against t's meter. Registration
// failures are logged and leave the corresponding field nil rather than
// failing startup, mirroring the teacher's APITracker.initMetrics.
func New(t *otel.Telemetry) *Metrics {
	m := &Metrics{}
	if t == nil || t.Meter == nil {
		slog.Warn("telemetry: no meter available, metrics disabled")
		return m
	}

	reg := func(name string, fn func() error) {
		if err := fn(); err != nil {
			slog.Warn("telemetry: failed to register metric", "name", name, "error", err)
		}
	}

	reg("wd_requests_total", func() (err error) {
		m.requestsTotal, err = t.Meter.Int64Counter("wd_requests_total", metric.WithDescription("HTTP requests received"))
		return
	})
	reg("wd_auth_failures_total", func() (err error) {
		m.authFailuresTotal, err = t.Meter.Int64Counter("wd_auth_failures_total", metric.WithDescription("Requests rejected by API key auth"))
		return
	})
	reg("wd_responses_4xx_total", func() (err error) {
		m.responses4xxTotal, err = t.Meter.Int64Counter("wd_responses_4xx_total", metric.WithDescription("Responses with a 4xx status"))
		return
	})
	reg("wd_responses_5xx_total", func() (err error) {
		m.responses5xxTotal, err = t.Meter.Int64Counter("wd_responses_5xx_total", metric.WithDescription("Responses with a 5xx status"))
		return
	})
	reg("wd_upstream_calls_total", func() (err error) {
		m.upstreamCallsTotal, err = t.Meter.Int64Counter("wd_upstream_calls_total", metric.WithDescription("Calls made to upstream RPC/price providers"))
		return
	})
	reg("wd_upstream_429s_total", func() (err error) {
		m.upstream429sTotal, err = t.Meter.Int64Counter("wd_upstream_429s_total", metric.WithDescription("Upstream calls that were rate limited"))
		return
	})
	reg("wd_extractor_fallbacks_total", func() (err error) {
		m.extractorFallbacks, err = t.Meter.Int64Counter("wd_extractor_fallbacks_total", metric.WithDescription("Trade extractions that fell through to the generic swap heuristic"))
		return
	})
	reg("wd_cache_hits_total", func() (err error) {
		m.cacheHitsTotal, err = t.Meter.Int64Counter("wd_cache_hits_total", metric.WithDescription("Cache reads served from a fresh entry"))
		return
	})
	reg("wd_cache_misses_total", func() (err error) {
		m.cacheMissesTotal, err = t.Meter.Int64Counter("wd_cache_misses_total", metric.WithDescription("Cache reads that found no entry"))
		return
	})
	reg("wd_cache_stale_serves_total", func() (err error) {
		m.cacheStaleServes, err = t.Meter.Int64Counter("wd_cache_stale_serves_total", metric.WithDescription("Cache reads served from a stale entry pending refresh"))
		return
	})
	reg("wd_refresh_triggers_total", func() (err error) {
		m.refreshTriggers, err = t.Meter.Int64Counter("wd_refresh_triggers_total", metric.WithDescription("Background refreshes triggered by a stale cache hit"))
		return
	})
	reg("wd_refresh_errors_total", func() (err error) {
		m.refreshErrors, err = t.Meter.Int64Counter("wd_refresh_errors_total", metric.WithDescription("Background refreshes that failed"))
		return
	})
	reg("wd_active_streams", func() (err error) {
		m.activeStreams, err = t.Meter.Int64UpDownCounter("wd_active_streams", metric.WithDescription("Currently open SSE streams"))
		return
	})
	reg("wd_in_flight_pipelines", func() (err error) {
		m.inFlightPipelines, err = t.Meter.Int64UpDownCounter("wd_in_flight_pipelines", metric.WithDescription("Pipeline runs currently executing"))
		return
	})
	reg("wd_phase_duration_seconds", func() (err error) {
		m.phaseDuration, err = t.Meter.Float64Histogram("wd_phase_duration_seconds",
			metric.WithDescription("Duration of one pipeline phase"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
		return
	})
	reg("wd_request_duration_seconds", func() (err error) {
		m.requestDuration, err = t.Meter.Float64Histogram("wd_request_duration_seconds",
			metric.WithDescription("Total HTTP request duration"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
		return
	})

	return m
}

func (m *Metrics) RequestReceived(ctx context.Context, route string) {
	if m == nil || m.requestsTotal == nil {
		return
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

func (m *Metrics) AuthFailure(ctx context.Context) {
	if m == nil || m.authFailuresTotal == nil {
		return
	}
	m.authFailuresTotal.Add(ctx, 1)
}

func (m *Metrics) ResponseStatus(ctx context.Context, route string, status int) {
	if m == nil {
		return
	}
	switch {
	case status >= 500 && m.responses5xxTotal != nil:
		m.responses5xxTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
	case status >= 400 && m.responses4xxTotal != nil:
		m.responses4xxTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
	}
}

func (m *Metrics) UpstreamCall(ctx context.Context, provider string) {
	if m == nil || m.upstreamCallsTotal == nil {
		return
	}
	m.upstreamCallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) UpstreamRateLimited(ctx context.Context, provider string) {
	if m == nil || m.upstream429sTotal == nil {
		return
	}
	m.upstream429sTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) ExtractorFallback(ctx context.Context, program string) {
	if m == nil || m.extractorFallbacks == nil {
		return
	}
	m.extractorFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("program", program)))
}

func (m *Metrics) CacheHit(ctx context.Context, store string) {
	if m == nil || m.cacheHitsTotal == nil {
		return
	}
	m.cacheHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
}

func (m *Metrics) CacheMiss(ctx context.Context, store string) {
	if m == nil || m.cacheMissesTotal == nil {
		return
	}
	m.cacheMissesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
}

func (m *Metrics) CacheStaleServe(ctx context.Context, store string) {
	if m == nil || m.cacheStaleServes == nil {
		return
	}
	m.cacheStaleServes.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
}

func (m *Metrics) RefreshTriggered(ctx context.Context, store string) {
	if m == nil || m.refreshTriggers == nil {
		return
	}
	m.refreshTriggers.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
}

func (m *Metrics) RefreshFailed(ctx context.Context, store string) {
	if m == nil || m.refreshErrors == nil {
		return
	}
	m.refreshErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
}

func (m *Metrics) StreamOpened(ctx context.Context) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, 1)
}

func (m *Metrics) StreamClosed(ctx context.Context) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, -1)
}

func (m *Metrics) PipelineStarted(ctx context.Context) {
	if m == nil || m.inFlightPipelines == nil {
		return
	}
	m.inFlightPipelines.Add(ctx, 1)
}

func (m *Metrics) PipelineFinished(ctx context.Context) {
	if m == nil || m.inFlightPipelines == nil {
		return
	}
	m.inFlightPipelines.Add(ctx, -1)
}

func (m *Metrics) PhaseDuration(ctx context.Context, phase string, seconds float64) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("phase", phase)))
}

func (m *Metrics) RequestDuration(ctx context.Context, route string, seconds float64) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("route", route)))
}
