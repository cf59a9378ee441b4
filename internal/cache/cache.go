// Package cache implements the two-tier Cache Layer (C8): a distributed KV
// primary (go-redis) backed by an in-process LRU fallback (ristretto). The
// distributed tier is wrapped in eko/gocache/v3's CacheInterface facade the
// way the teacher's GenericCache adapter did for its single-tier ristretto
// cache; the local tier is used as a bare *ristretto.Cache. Adds the
// staleness/refresh-coalescing semantics spec.md §4.8 needs: a stale hit is
// served immediately while a single background refresh per key runs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/v3/cache"
	"github.com/eko/gocache/v3/store"
	"github.com/go-redis/redis/v8"

	"github.com/walletdigest/wdapi/internal/model"
)

// Key builders for the versioned keyspace spec.md §4.8 enumerates.
func SnapshotKey(wallet string) string         { return fmt.Sprintf("pos:v1:snapshot:%s", wallet) }
func PositionKey(wallet, mint string) string   { return fmt.Sprintf("pos:v1:position:%s:%s", wallet, mint) }
func TradesKey(wallet string) string           { return fmt.Sprintf("trades:v1:%s", wallet) }

// staleGrace is how much longer than its logical TTL an entry is retained
// in the distributed tier, so a stale-but-still-useful value can be served
// while a refresh runs instead of falling straight through to a cold path.
const staleGrace = time.Hour

// Meta describes the freshness of a Get result.
type Meta struct {
	Hit        bool
	Stale      bool
	AgeSeconds int64
}

// Store is a two-tier cache for one logical entry type T, keyed by string.
type Store[T any] struct {
	redisCache cache.CacheInterface[[]byte] // nil when no distributed cache is configured
	local      *ristretto.Cache
	ttl        time.Duration

	mu         sync.Mutex
	refreshing map[string]chan struct{}

	onHit, onMiss, onStale           func()
	onRefreshTrigger, onRefreshError func()
}

// New builds a Store. redisClient may be nil (distributed tier disabled,
// the service degrades to local-only caching); local must not be nil.
func New[T any](redisClient *redis.Client, local *ristretto.Cache, ttl time.Duration) *Store[T] {
	var redisCache cache.CacheInterface[[]byte]
	if redisClient != nil {
		redisCache = cache.New[[]byte](store.NewRedis(redisClient, nil))
	}
	return &Store[T]{
		redisCache: redisCache,
		local:      local,
		ttl:        ttl,
		refreshing: make(map[string]chan struct{}),
	}
}

// OnMetrics wires counters for hits/misses/stale-serves (C12). Any of the
// three callbacks may be nil.
func (s *Store[T]) OnMetrics(onHit, onMiss, onStale func()) {
	s.onHit, s.onMiss, s.onStale = onHit, onMiss, onStale
}

// OnRefreshMetrics wires counters for background refresh triggers/errors
// (C12). Either callback may be nil.
func (s *Store[T]) OnRefreshMetrics(onTrigger, onError func()) {
	s.onRefreshTrigger, s.onRefreshError = onTrigger, onError
}

// Get returns the cached value for key, if any, and whether it is stale.
func (s *Store[T]) Get(ctx context.Context, key string) (model.CachedSnapshot[T], Meta) {
	if v, ok := s.local.Get(key); ok {
		snap := v.(model.CachedSnapshot[T])
		return snap, s.metaFor(snap)
	}

	if s.redisCache != nil {
		raw, err := s.redisCache.Get(ctx, key)
		if err == nil {
			var snap model.CachedSnapshot[T]
			if jsonErr := json.Unmarshal(raw, &snap); jsonErr == nil {
				s.local.SetWithTTL(key, snap, 1, s.ttl+staleGrace)
				return snap, s.metaFor(snap)
			}
		}
	}

	if s.onMiss != nil {
		s.onMiss()
	}
	return model.CachedSnapshot[T]{}, Meta{}
}

func (s *Store[T]) metaFor(snap model.CachedSnapshot[T]) Meta {
	now := time.Now()
	stale := snap.Stale(now)
	if stale {
		if s.onStale != nil {
			s.onStale()
		}
	} else if s.onHit != nil {
		s.onHit()
	}
	return Meta{Hit: true, Stale: stale, AgeSeconds: snap.AgeSeconds(now)}
}

// Set writes value under key with the Store's configured TTL.
func (s *Store[T]) Set(ctx context.Context, key string, value T) error {
	snap := model.CachedSnapshot[T]{Value: value, CachedAt: time.Now(), TTL: s.ttl}

	// The local tier's physical TTL must outlive the logical TTL by the same
	// staleGrace margin as Redis: ristretto hard-evicts on expiry instead of
	// serving a stale entry, so a shorter physical TTL here would turn a
	// stale hit into a hard miss in the no-Redis deployment.
	s.local.SetWithTTL(key, snap, 1, s.ttl+staleGrace)
	s.local.Wait()

	if s.redisCache == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}
	return s.redisCache.Set(ctx, key, raw, store.WithExpiration(s.ttl+staleGrace))
}

// Invalidate removes key from both tiers.
func (s *Store[T]) Invalidate(ctx context.Context, key string) {
	s.local.Del(key)
	if s.redisCache != nil {
		if err := s.redisCache.Delete(ctx, key); err != nil {
			slog.Warn("cache: invalidate failed", "key", key, "error", err)
		}
	}
}

// Refresh runs fn in the background for key unless a refresh for that key
// is already in flight, in which case the call is a no-op (coalescing,
// spec.md §4.8 / §5's per-wallet serialization contract). On success the
// result replaces the cached entry; on failure the stale entry is left in
// place.
func (s *Store[T]) Refresh(key string, fn func(ctx context.Context) (T, error)) {
	s.mu.Lock()
	if _, inFlight := s.refreshing[key]; inFlight {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.refreshing[key] = done
	s.mu.Unlock()

	if s.onRefreshTrigger != nil {
		s.onRefreshTrigger()
	}

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.refreshing, key)
			s.mu.Unlock()
			close(done)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		value, err := fn(ctx)
		if err != nil {
			slog.Warn("cache: background refresh failed, keeping stale entry", "key", key, "error", err)
			if s.onRefreshError != nil {
				s.onRefreshError()
			}
			return
		}
		if setErr := s.Set(ctx, key, value); setErr != nil {
			slog.Warn("cache: background refresh succeeded but write failed", "key", key, "error", setErr)
			if s.onRefreshError != nil {
				s.onRefreshError()
			}
		}
	}()
}
