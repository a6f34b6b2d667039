// Package cache keeps similarity search results in Redis so repeated
// queries skip the index entirely until the next rebuild invalidates them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/reviewpulse/reviewpulse/internal/review"
	"github.com/reviewpulse/reviewpulse/pkg/config"
	pkgredis "github.com/reviewpulse/reviewpulse/pkg/redis"
)

const keyPrefix = "search:"

// SearchCache caches search results keyed by normalized query text and k.
// Concurrent misses for the same key are collapsed through singleflight so
// the index computes each result once.
type SearchCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a SearchCache over the given Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *SearchCache {
	return &SearchCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "search-cache"),
	}
}

// Get returns the cached result for the query, if present. Any Redis or
// decode failure counts as a miss.
func (c *SearchCache) Get(ctx context.Context, query string, k int) (*review.SearchResult, bool) {
	key := c.buildKey(query, k)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result review.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

// Set stores the result under the query's key with the configured TTL.
// Failures are logged and swallowed; the cache is best-effort.
func (c *SearchCache) Set(ctx context.Context, query string, k int, result *review.SearchResult) {
	key := c.buildKey(query, k)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and caches it, with
// concurrent computations for the same key deduplicated. The boolean
// reports whether the result came from cache.
func (c *SearchCache) GetOrCompute(
	ctx context.Context,
	query string,
	k int,
	computeFn func() (*review.SearchResult, error),
) (*review.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, query, k); ok {
		return result, true, nil
	}
	key := c.buildKey(query, k)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, query, k); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, k, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*review.SearchResult), false, nil
}

// Invalidate removes every cached search result. Called after index
// rebuilds so stale scores never outlive the corpus they were computed on.
func (c *SearchCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating search cache: %w", err)
	}
	c.logger.Info("search cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns cumulative hit and miss counts.
func (c *SearchCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *SearchCache) buildKey(query string, k int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	raw := fmt.Sprintf("%s:k=%d", normalized, k)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
