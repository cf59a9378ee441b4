package middleware

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/walletdigest/wdapi/internal/apperr"
)

// apiKeyPattern matches spec.md §4.10's X-Api-Key format.
var apiKeyPattern = regexp.MustCompile(`^wd_[A-Za-z0-9]{32}$`)

// APIKeyAuth enforces the X-Api-Key header when required is true. A missing
// or malformed key both fail closed with AuthDenied; the handler never
// distinguishes the two in the response body, matching spec.md §6.3.
func APIKeyAuth(required bool, writeErr func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-Api-Key")
			if key == "" {
				slog.Warn("auth: missing X-Api-Key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeErr(w, r, apperr.AuthDenied("missing or malformed X-Api-Key"))
				return
			}
			if !apiKeyPattern.MatchString(key) {
				slog.Warn("auth: malformed X-Api-Key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeErr(w, r, apperr.AuthDenied("missing or malformed X-Api-Key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
