package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/walletdigest/wdapi/internal/apperr"
)

// respondJSON sends a JSON response with the given data and status code.
func respondJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

// errorWire is the JSON error envelope spec.md §6.3 mandates.
type errorWire struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       int    `json:"code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeError maps any error onto spec.md §6.3's status/body contract,
// defaulting to 500/internal for anything that isn't an *apperr.AppError.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(err)
	}

	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", appErr.RetryAfter))
	}
	respondJSON(w, errorWire{
		Error:      string(appErr.Category),
		Message:    appErr.Message,
		Code:       appErr.Code,
		RetryAfter: appErr.RetryAfter,
	}, appErr.Code)
}
