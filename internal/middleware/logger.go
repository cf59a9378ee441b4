package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
)

// RequestLogger logs one colorful line to stdout (development texture) and
// one structured slog record per request, matching the "one JSON record per
// request" requirement of the observability component.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := NewWrapResponseWriter(w)

		if r.Body != nil && !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			reqBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		statusColor := color.New(color.Bold)
		switch {
		case ww.Status() >= 500:
			statusColor = color.New(color.FgRed, color.Bold)
		case ww.Status() >= 400:
			statusColor = color.New(color.FgYellow, color.Bold)
		case ww.Status() >= 300:
			statusColor = color.New(color.FgCyan, color.Bold)
		default:
			statusColor = color.New(color.FgGreen, color.Bold)
		}
		methodColor := color.New(color.FgBlue, color.Bold)

		cacheStr := ""
		if c := w.Header().Get("X-Cache"); c != "" {
			cacheStr = color.New(color.FgGreen).Sprintf("[cache:%s]", c)
		}

		fmt.Printf("%s %s %s %s %s\n",
			methodColor.Sprintf("%-7s", r.Method),
			cacheStr,
			r.URL.String(),
			statusColor.Sprintf("%d", ww.Status()),
			duration,
		)

		slog.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", duration),
			slog.String("request_id", r.Header.Get("X-Request-ID")),
			slog.String("cache", w.Header().Get("X-Cache")),
		)
	})
}

// WrapResponseWriter captures the status code and byte count written.
type WrapResponseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int
}

func NewWrapResponseWriter(w http.ResponseWriter) *WrapResponseWriter {
	return &WrapResponseWriter{ResponseWriter: w}
}

func (w *WrapResponseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *WrapResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *WrapResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *WrapResponseWriter) BytesWritten() int {
	return w.bytesWritten
}
