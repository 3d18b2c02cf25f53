// Package cache stores search results in redis. Keys carry the snapshot
// version and publication time, so a newly published snapshot never serves
// results computed against another one; stale entries simply expire.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

const keyPrefix = "search:"

// Client is the subset of the redis client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Option func(*QueryCache)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) { c.metrics = m }
}

// WithBreaker overrides the circuit breaker guarding redis calls.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *QueryCache) { c.breakerCfg = cfg }
}

// QueryCache is a read-through result cache. When redis fails repeatedly
// the breaker opens and searches bypass the cache until it recovers.
type QueryCache struct {
	client     Client
	ttl        time.Duration
	group      singleflight.Group
	breaker    *resilience.CircuitBreaker
	breakerCfg resilience.CircuitBreakerConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

func New(client Client, ttl time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	cfg := c.breakerCfg
	if c.metrics != nil && cfg.OnStateChange == nil {
		gauge := c.metrics.CircuitBreakerState
		cfg.OnStateChange = func(name string, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", cfg)
	return c
}

// Key builds the redis key for a search against the snapshot identified by
// version and publishedAt. canonical must render every other input that
// changes the result. The publication time keeps keys apart when a restarted
// indexer republishes a version number it had used before a crash.
func Key(version uint64, publishedAt time.Time, canonical string) string {
	hash := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%sv%d-%d:%x", keyPrefix, version, publishedAt.UnixNano(), hash[:16])
}

// Get returns the cached result for key. Redis errors count as misses.
func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data string
	err := c.breaker.Execute(func() error {
		v, err := c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key, or runs compute once per
// key across concurrent callers and caches what it returns. The boolean
// reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Total   int64  `json:"total"`
	HitRate string `json:"hit_rate"`
	Breaker string `json:"breaker"`
}

func (c *QueryCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Hits: hits, Misses: misses, Total: hits + misses, Breaker: c.breaker.GetState().String()}
	var rate float64
	if s.Total > 0 {
		rate = float64(hits) / float64(s.Total) * 100
	}
	s.HitRate = fmt.Sprintf("%.1f%%", rate)
	return s
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
