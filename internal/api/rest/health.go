package rest

import (
	"net/http"
	"time"
)

type healthWire struct {
	Status       string         `json:"status"`
	UptimeSec    int64          `json:"uptime_seconds"`
	FeatureFlags map[string]bool `json:"feature_flags"`
}

// handleHealth serves GET /health: liveness plus feature-flag visibility,
// matching spec.md §4.10.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, healthWire{
		Status:    "ok",
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
		FeatureFlags: map[string]bool{
			"trades":    h.flags.Trades,
			"positions": h.flags.Positions,
			"stream":    h.flags.Stream,
		},
	}, http.StatusOK)
}
