package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/walletdigest/wdapi/internal/apperr"
)

// RateLimiter enforces a per-API-key token bucket (spec.md §4.10: 50
// req/min per key by default). Unkeyed requests (auth disabled) fall back
// to the remote address.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter allowing requestsPerMinute sustained
// requests per key, with burstSize instantaneous headroom.
func NewRateLimiter(requestsPerMinute float64, burstSize int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(requestsPerMinute / 60),
		burst:    burstSize,
		cleanup:  5 * time.Minute,
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[key] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(rl.cleanup)

		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.cleanup {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the per-key bucket, writing a 429 via writeErr
// (which sets Retry-After) when exhausted.
func (rl *RateLimiter) Middleware(writeErr func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Api-Key")
			if key == "" {
				key = r.RemoteAddr
			}

			if !rl.getVisitor(key).Allow() {
				slog.Warn("rate limit exceeded", "key_suffix", suffix(key), "path", r.URL.Path)
				writeErr(w, r, apperr.RateLimited(60))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// suffix avoids logging a full API key.
func suffix(key string) string {
	if len(key) <= 6 {
		return key
	}
	return key[len(key)-6:]
}
