// Package rest implements the HTTP Surface (C10): route handlers for the
// trades/positions export endpoints and the health probe, response
// serialization for the full/value/compact trade schemas and the
// positions snapshot, and the middleware chain (auth, rate-limit,
// logging, recovery, CORS) wired the way the teacher's router does.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/walletdigest/wdapi/internal/apperr"
	"github.com/walletdigest/wdapi/internal/middleware"
	"github.com/walletdigest/wdapi/internal/telemetry"
)

// FeatureFlags gates endpoint visibility; a disabled endpoint returns 501
// (spec.md §4.10).
type FeatureFlags struct {
	Trades    bool
	Positions bool
	Stream    bool
}

// Handler holds everything the route handlers close over.
type Handler struct {
	service   *Service
	flags     FeatureFlags
	startedAt time.Time
}

// Config bundles the router's dependencies beyond the Service itself.
type Config struct {
	Flags          FeatureFlags
	APIKeyRequired bool
	AllowedOrigins []string
	RateLimitRPM   float64
	RateLimitBurst int
	Metrics        *telemetry.Metrics
}

// NewRouter builds the full chi router for the REST surface. streamHandler
// is injected rather than imported directly so this package doesn't need to
// depend on the SSE transport package.
func NewRouter(svc *Service, cfg Config, streamHandler http.HandlerFunc) http.Handler {
	h := &Handler{service: svc, flags: cfg.Flags, startedAt: time.Now()}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"X-Api-Key", "Content-Type", "Last-Event-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestLogger)
	r.Use(metricsMiddleware(cfg.Metrics))

	rl := middleware.NewRateLimiter(rpmOrDefault(cfg.RateLimitRPM), burstOrDefault(cfg.RateLimitBurst))
	r.Use(middleware.APIKeyAuth(cfg.APIKeyRequired, writeError))
	r.Use(rl.Middleware(writeError))

	r.Get("/health", h.handleHealth)

	r.Get("/v4/trades/export-gpt/{wallet}", gate(cfg.Flags.Trades, "trades", h.handleTrades))
	r.Get("/v4/positions/export-gpt/{wallet}", gate(cfg.Flags.Positions, "positions", h.handlePositions))
	if cfg.Flags.Stream && streamHandler != nil {
		r.Get("/v4/wallet/{wallet}/stream", streamHandler)
	} else {
		r.Get("/v4/wallet/{wallet}/stream", gate(false, "stream", nil))
	}

	return r
}

// metricsMiddleware records the request-count, response-status, and
// request-duration metric families C12 names. m may be nil.
func metricsMiddleware(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			m.RequestReceived(r.Context(), route)

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			m.RequestDuration(r.Context(), route, time.Since(start).Seconds())
			m.ResponseStatus(r.Context(), route, ww.Status())
		})
	}
}

func gate(enabled bool, feature string, next http.HandlerFunc) http.HandlerFunc {
	if !enabled || next == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, apperr.FeatureDisabled(feature))
		}
	}
	return next
}

func rpmOrDefault(rpm float64) float64 {
	if rpm <= 0 {
		return 50
	}
	return rpm
}

func burstOrDefault(burst int) int {
	if burst <= 0 {
		return 10
	}
	return burst
}
