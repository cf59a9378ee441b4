// Package config loads process configuration from the environment, the way
// cmd/api's teacher entrypoint does: a local .env file (if present) layered
// under real environment variables, unmarshaled by envconfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config mirrors spec.md §6.1 verbatim, plus the PORT/APP_ENV knobs every
// service in this stack carries.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	Port        int    `envconfig:"PORT" default:"8080"`

	UpstreamRPCKey   string `envconfig:"UPSTREAM_RPC_KEY" required:"true"`
	UpstreamRPCURL   string `envconfig:"UPSTREAM_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	ExternalPriceKey string `envconfig:"EXTERNAL_PRICE_KEY"`
	ExternalPriceURL string `envconfig:"EXTERNAL_PRICE_URL"`
	PriceHeliusOnly  bool   `envconfig:"PRICE_HELIUS_ONLY" default:"false"`
	PriceSolSpotOnly bool   `envconfig:"PRICE_SOL_SPOT_ONLY" default:"true"`

	PositionCacheTTLSec time.Duration `envconfig:"POSITION_CACHE_TTL_SEC" default:"900s"`
	PositionCacheMax    int           `envconfig:"POSITION_CACHE_MAX" default:"2000"`

	MaxConcurrentUpstream int           `envconfig:"MAX_CONCURRENT_UPSTREAM" default:"40"`
	UpstreamRPS           float64       `envconfig:"UPSTREAM_RPS" default:"50"`
	UpstreamTimeoutSec    time.Duration `envconfig:"UPSTREAM_TIMEOUT_SEC" default:"20s"`
	RequestTimeoutSec     time.Duration `envconfig:"REQUEST_TIMEOUT_SEC" default:"120s"`

	SSEKeepaliveSec  time.Duration `envconfig:"SSE_KEEPALIVE_SEC" default:"30s"`
	SSEMaxStreamSec  time.Duration `envconfig:"SSE_MAX_STREAM_SEC" default:"600s"`

	APIKeyRequired bool     `envconfig:"API_KEY_REQUIRED" default:"true"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitRPM   float64  `envconfig:"RATE_LIMIT_RPM" default:"50"`
	RateLimitBurst int      `envconfig:"RATE_LIMIT_BURST" default:"10"`

	DistributedCacheURL string `envconfig:"DISTRIBUTED_CACHE_URL"`

	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT" default:"localhost:4317"`

	// Feature flags gate endpoint visibility (spec.md §4.10); a disabled
	// endpoint responds 501.
	FeatureTrades    bool `envconfig:"FEATURE_TRADES" default:"true"`
	FeaturePositions bool `envconfig:"FEATURE_POSITIONS" default:"true"`
	FeatureStream    bool `envconfig:"FEATURE_STREAM" default:"true"`
}

// Load reads .env (if present, never overriding a real env var) and
// unmarshals the process environment into a Config, matching the teacher's
// cmd/api/main.go startup sequence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	return &cfg, nil
}
