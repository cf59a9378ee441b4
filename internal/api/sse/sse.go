// Package sse implements the Streaming Transport (C11): a long-lived
// text/event-stream response that forwards one pipeline run's progress,
// extracted-trade batches, and final result as a sequence of framed SSE
// events (spec.md §4.11).
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/walletdigest/wdapi/internal/api/rest"
	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/pipeline"
	"github.com/walletdigest/wdapi/internal/telemetry"
)

// Config bounds one stream (spec.md §4.11, §6.1).
type Config struct {
	Keepalive        time.Duration
	MaxDuration      time.Duration
	MaxStreamsPerKey int
}

func DefaultConfig() Config {
	return Config{Keepalive: 30 * time.Second, MaxDuration: 10 * time.Minute, MaxStreamsPerKey: 10}
}

// Handler serves GET /v4/wallet/{wallet}/stream.
type Handler struct {
	pipeline *pipeline.Pipeline
	cfg      Config
	metrics  *telemetry.Metrics

	mu     sync.Mutex
	perKey map[string]int
}

func NewHandler(p *pipeline.Pipeline, cfg Config) *Handler {
	return &Handler{pipeline: p, cfg: cfg, perKey: make(map[string]int)}
}

// SetMetrics wires the active-stream gauge (C12). m may be nil.
func (h *Handler) SetMetrics(m *telemetry.Metrics) { h.metrics = m }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	pub, err := rest.ValidateWallet(wallet)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	key := r.Header.Get("X-Api-Key")
	if key == "" {
		key = r.RemoteAddr
	}
	if !h.acquireSlot(key) {
		http.Error(w, "too many concurrent streams for this key", http.StatusTooManyRequests)
		return
	}
	defer h.releaseSlot(key)

	h.metrics.StreamOpened(r.Context())
	defer h.metrics.StreamClosed(r.Context())

	streamID := uuid.NewString()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Stream-ID", streamID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.MaxDuration)
	defer cancel()

	enc := &eventEncoder{w: w, flusher: flusher}
	enc.write("connected", connectedData{StreamID: streamID, Wallet: wallet, Timestamp: time.Now().UTC()})

	h.run(ctx, wallet, pub, enc)
}

// frame carries exactly one of progress, result, or err down the run's
// single internal channel, preserving emission order against the final
// result (a select across separate channels could otherwise race).
type frame struct {
	progress *pipeline.ProgressEvent
	result   *pipeline.Result
	err      error
}

func (h *Handler) run(ctx context.Context, wallet string, pub solana.PublicKey, enc *eventEncoder) {
	start := time.Now()
	ch := make(chan frame, 64)

	go func() {
		result, err := h.pipeline.Run(ctx, wallet, pub, func(ev pipeline.ProgressEvent) {
			select {
			case ch <- frame{progress: &ev}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			ch <- frame{err: err}
		} else {
			ch <- frame{result: &result}
		}
		close(ch)
	}()

	ticker := time.NewTicker(h.cfg.Keepalive)
	defer ticker.Stop()

	batchNum := 0
	totalYielded := 0

	for {
		select {
		case <-ctx.Done():
			enc.write("error", errorData{Error: "timeout", Code: http.StatusGatewayTimeout})
			return

		case f, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case f.progress != nil:
				ev := f.progress
				enc.write("progress", progressData{
					Phase:      string(ev.Phase),
					Percentage: ev.Percentage,
					Message:    ev.Message,
					ItemsDone:  ev.ItemsDone,
					ItemsTotal: ev.ItemsTotal,
				})
				if len(ev.NewTrades) > 0 {
					batchNum++
					totalYielded += len(ev.NewTrades)
					enc.write("trades", tradesData{
						Trades:       ev.NewTrades,
						BatchNum:     batchNum,
						TotalYielded: totalYielded,
						HasMore:      true,
					})
				}
			case f.err != nil:
				writeRunError(enc, f.err)
				return
			case f.result != nil:
				enc.write("complete", completeData{
					Summary:        f.result.Summary,
					ElapsedSeconds: time.Since(start).Seconds(),
					TotalTrades:    len(f.result.Trades),
					TotalPositions: len(f.result.Positions),
				})
				return
			}

		case <-ticker.C:
			enc.write("heartbeat", heartbeatData{Timestamp: time.Now().UTC()})
		}
	}
}

func writeRunError(enc *eventEncoder, err error) {
	code := http.StatusBadGateway
	var timeoutErr *pipeline.TimeoutError
	if errors.As(err, &timeoutErr) {
		code = http.StatusGatewayTimeout
	}
	enc.write("error", errorData{Error: err.Error(), Code: code})
}

func (h *Handler) acquireSlot(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.perKey[key] >= h.cfg.MaxStreamsPerKey {
		return false
	}
	h.perKey[key]++
	return true
}

func (h *Handler) releaseSlot(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.perKey[key]--
	if h.perKey[key] <= 0 {
		delete(h.perKey, key)
	}
}

// eventEncoder frames one JSON payload per spec.md §6.2's SSE wire format:
// id, event, data, blank-line terminator. IDs are monotonic per stream.
type eventEncoder struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  int64
}

func (e *eventEncoder) write(event string, data interface{}) {
	e.nextID++
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("sse: failed to marshal event payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(e.w, "id: %d\nevent: %s\ndata: %s\n\n", e.nextID, event, payload)
	e.flusher.Flush()
}

type connectedData struct {
	StreamID  string    `json:"stream_id"`
	Wallet    string    `json:"wallet"`
	Timestamp time.Time `json:"timestamp"`
}

type progressData struct {
	Phase      string  `json:"phase"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
	ItemsDone  int     `json:"items_done"`
	ItemsTotal int     `json:"items_total,omitempty"`
}

type tradesData struct {
	Trades       []model.Trade `json:"trades"`
	BatchNum     int           `json:"batch_num"`
	TotalYielded int           `json:"total_yielded"`
	HasMore      bool          `json:"has_more"`
}

type heartbeatData struct {
	Timestamp time.Time `json:"timestamp"`
}

type completeData struct {
	Summary        model.PortfolioSummary `json:"summary"`
	ElapsedSeconds float64                `json:"elapsed_seconds"`
	TotalTrades    int                    `json:"total_trades"`
	TotalPositions int                    `json:"total_positions"`
}

type errorData struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
