package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-redis/redis/v8"

	"github.com/walletdigest/wdapi/internal/api/rest"
	"github.com/walletdigest/wdapi/internal/api/sse"
	"github.com/walletdigest/wdapi/internal/cache"
	"github.com/walletdigest/wdapi/internal/clients/priceprovider"
	"github.com/walletdigest/wdapi/internal/clients/solanarpc"
	"github.com/walletdigest/wdapi/internal/clients/solspot"
	"github.com/walletdigest/wdapi/internal/clients/tracker"
	"github.com/walletdigest/wdapi/internal/config"
	"github.com/walletdigest/wdapi/internal/logger"
	"github.com/walletdigest/wdapi/internal/model"
	"github.com/walletdigest/wdapi/internal/oracle"
	"github.com/walletdigest/wdapi/internal/pipeline"
	"github.com/walletdigest/wdapi/internal/telemetry"
	"github.com/walletdigest/wdapi/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	var handler slog.Handler
	if cfg.Environment == "development" {
		handler = logger.NewColorHandler(slog.LevelDebug, os.Stdout, os.Stderr)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(logger.NewOtelHandler(handler)))

	slog.Info("configuration loaded",
		"app_env", cfg.Environment,
		"port", cfg.Port,
		"upstream_rpc_url", cfg.UpstreamRPCURL,
		"distributed_cache", cfg.DistributedCacheURL != "",
	)

	ctx := context.Background()

	otelTelemetry, err := otel.InitTelemetry(ctx, otel.Config{
		ServiceName:    "wdapi",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		slog.Error("failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	slog.Info("OpenTelemetry initialized", "endpoint", cfg.OTLPEndpoint)

	apiTracker, err := tracker.NewAPITracker(otelTelemetry)
	if err != nil {
		slog.Error("failed to create API tracker", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.New(otelTelemetry)

	rpcEndpoint := cfg.UpstreamRPCURL
	if cfg.UpstreamRPCKey != "" {
		rpcEndpoint = fmt.Sprintf("%s?api-key=%s", rpcEndpoint, cfg.UpstreamRPCKey)
	}
	rpcClient := solanarpc.New(rpcEndpoint, solanarpc.Config{
		RPS:            cfg.UpstreamRPS,
		MaxConcurrency: int64(cfg.MaxConcurrentUpstream),
		RequestTimeout: cfg.UpstreamTimeoutSec,
	}, apiTracker)

	priceClient := priceprovider.New(priceprovider.Config{
		BaseURL:    cfg.ExternalPriceURL,
		APIKey:     cfg.ExternalPriceKey,
		HeliusOnly: cfg.PriceHeliusOnly,
	}, apiTracker)

	spotClient := solspot.New(cfg.ExternalPriceKey, apiTracker)

	oc := oracle.New(oracle.Config{
		HeliusOnly:              cfg.PriceHeliusOnly,
		SolSpotOnly:             cfg.PriceSolSpotOnly,
		ExternalProviderEnabled: priceClient.Enabled(),
		StaleTTL:                oracle.DefaultConfig().StaleTTL,
		SolSpotTTL:              oracle.DefaultConfig().SolSpotTTL,
	}, spotClient, priceClient)

	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.Timeout = cfg.RequestTimeoutSec
	p := pipeline.New(rpcClient, oc, pipelineCfg)
	p.SetMetrics(metrics)

	var redisClient *redis.Client
	if cfg.DistributedCacheURL != "" {
		opts, err := redis.ParseURL(cfg.DistributedCacheURL)
		if err != nil {
			slog.Error("failed to parse distributed cache URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		slog.Info("distributed cache tier enabled")
	} else {
		slog.Info("distributed cache tier disabled, local-only caching")
	}

	tradesLocal, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.PositionCacheMax) * 10,
		MaxCost:     int64(cfg.PositionCacheMax),
		BufferItems: 64,
	})
	if err != nil {
		slog.Error("failed to create trades local cache", "error", err)
		os.Exit(1)
	}
	snapshotsLocal, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.PositionCacheMax) * 10,
		MaxCost:     int64(cfg.PositionCacheMax),
		BufferItems: 64,
	})
	if err != nil {
		slog.Error("failed to create snapshots local cache", "error", err)
		os.Exit(1)
	}

	tradesStore := cache.New[[]model.Trade](redisClient, tradesLocal, cfg.PositionCacheTTLSec)
	tradesStore.OnMetrics(
		func() { metrics.CacheHit(ctx, "trades") },
		func() { metrics.CacheMiss(ctx, "trades") },
		func() { metrics.CacheStaleServe(ctx, "trades") },
	)
	tradesStore.OnRefreshMetrics(
		func() { metrics.RefreshTriggered(ctx, "trades") },
		func() { metrics.RefreshFailed(ctx, "trades") },
	)

	snapshotsStore := cache.New[model.PortfolioSnapshot](redisClient, snapshotsLocal, cfg.PositionCacheTTLSec)
	snapshotsStore.OnMetrics(
		func() { metrics.CacheHit(ctx, "positions") },
		func() { metrics.CacheMiss(ctx, "positions") },
		func() { metrics.CacheStaleServe(ctx, "positions") },
	)
	snapshotsStore.OnRefreshMetrics(
		func() { metrics.RefreshTriggered(ctx, "positions") },
		func() { metrics.RefreshFailed(ctx, "positions") },
	)

	svc := rest.NewService(p, tradesStore, snapshotsStore)

	streamHandler := sse.NewHandler(p, sse.Config{
		Keepalive:        cfg.SSEKeepaliveSec,
		MaxDuration:      cfg.SSEMaxStreamSec,
		MaxStreamsPerKey: sse.DefaultConfig().MaxStreamsPerKey,
	})
	streamHandler.SetMetrics(metrics)

	router := rest.NewRouter(svc, rest.Config{
		Flags: rest.FeatureFlags{
			Trades:    cfg.FeatureTrades,
			Positions: cfg.FeaturePositions,
			Stream:    cfg.FeatureStream,
		},
		APIKeyRequired: cfg.APIKeyRequired,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        metrics,
	}, streamHandler.ServeHTTP)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SSEMaxStreamSec + time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		slog.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := otelTelemetry.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown OpenTelemetry", "error", err)
	}

	slog.Info("server shutdown complete")
}
