package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/walletdigest/wdapi/internal/apperr"
	"github.com/walletdigest/wdapi/internal/model"
)

// handleTrades serves GET /v4/trades/export-gpt/{wallet}.
func (h *Handler) handleTrades(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	if _, err := ValidateWallet(wallet); err != nil {
		writeError(w, r, err)
		return
	}

	version, err := parseTradesSchemaVersion(r.URL.Query().Get("schema_version"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	trades, _, err := h.service.GetTrades(r.Context(), wallet, r.URL.Query().Get("refresh") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if version == model.SchemaTradesCompact {
		out, _ := buildTradesCompactExport(wallet, trades)
		respondJSON(w, out, http.StatusOK)
		return
	}
	respondJSON(w, buildTradesExport(wallet, version, trades), http.StatusOK)
}

func parseTradesSchemaVersion(raw string) (model.SchemaVersion, error) {
	if raw == "" {
		return model.SchemaTradesValue, nil
	}
	switch model.SchemaVersion(raw) {
	case model.SchemaTradesFull, model.SchemaTradesValue, model.SchemaTradesCompact:
		return model.SchemaVersion(raw), nil
	default:
		return "", apperr.Validation("unsupported schema_version %q", raw)
	}
}

// handlePositions serves GET /v4/positions/export-gpt/{wallet}.
func (h *Handler) handlePositions(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	if _, err := ValidateWallet(wallet); err != nil {
		writeError(w, r, err)
		return
	}

	if v := r.URL.Query().Get("schema_version"); v != "" && model.SchemaVersion(v) != model.SchemaPositionsV08 {
		writeError(w, r, apperr.Validation("unsupported schema_version %q", v))
		return
	}

	snap, meta, err := h.service.GetPositions(r.Context(), wallet, r.URL.Query().Get("refresh") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := buildPositionsExport(snap)
	if meta.Stale {
		out.Stale = true
		out.AgeSeconds = meta.AgeSeconds
	}
	respondJSON(w, out, http.StatusOK)
}
