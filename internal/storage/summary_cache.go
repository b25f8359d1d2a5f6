package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tax-ledger/internal/logging"
)

// SummaryCache memoizes rendered summaries in Redis. Keys embed the subject's
// sequence fingerprint, so an entry can only ever be read back for the exact
// event sequence it was computed from and appends need no invalidation.
//
// Cache failures are logged and treated as misses; they never fail a request.
type SummaryCache struct {
	cache  *RedisCache
	ttl    time.Duration
	prefix string
	logger *logging.Logger
}

// NewSummaryCache creates a cache. variant distinguishes parameters that
// change the rendered result (for example the loss haircut).
func NewSummaryCache(cache *RedisCache, ttl time.Duration, variant string, logger *logging.Logger) *SummaryCache {
	return &SummaryCache{
		cache:  cache,
		ttl:    ttl,
		prefix: "summary:" + variant,
		logger: logger.WithComponent("summary_cache"),
	}
}

// Key builds the cache key for a subject at a given fingerprint
func (c *SummaryCache) Key(subject, view string, fp Fingerprint) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, view, subject, fp)
}

// Load decodes the cached value for key into dest and reports whether it was found
func (c *SummaryCache) Load(ctx context.Context, key string, dest interface{}) bool {
	data, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("summary cache read failed")
		return false
	}
	if !found {
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		_ = c.cache.Del(ctx, key)
		return false
	}
	return true
}

// Store saves value under key. Errors are logged only.
func (c *SummaryCache) Store(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("summary cache encode failed")
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("summary cache write failed")
	}
}
