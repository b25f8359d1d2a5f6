package storage

import (
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/logging"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCacheFromClient(client), mr
}

func quietLogger() *logging.Logger {
	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	logger.SetOutput(io.Discard)
	return logger
}

type cachedValue struct {
	Net float64 `json:"net"`
}

func TestSummaryCache_RoundTrip(t *testing.T) {
	rc, _ := newTestRedis(t)
	cache := NewSummaryCache(rc, time.Minute, "0.7", quietLogger())
	ctx := testContext(t)

	key := cache.Key("alice", "summary", Fingerprint{Count: 2, MaxID: 9})
	assert.Equal(t, "summary:0.7:summary:alice:2:9", key)

	var got cachedValue
	assert.False(t, cache.Load(ctx, key, &got))

	cache.Store(ctx, key, cachedValue{Net: 12})
	require.True(t, cache.Load(ctx, key, &got))
	assert.Equal(t, 12.0, got.Net)
}

func TestSummaryCache_FingerprintChangeIsAMiss(t *testing.T) {
	rc, _ := newTestRedis(t)
	cache := NewSummaryCache(rc, time.Minute, "0.7", quietLogger())
	ctx := testContext(t)

	cache.Store(ctx, cache.Key("alice", "summary", Fingerprint{Count: 1, MaxID: 1}), cachedValue{Net: 1})

	var got cachedValue
	assert.False(t, cache.Load(ctx, cache.Key("alice", "summary", Fingerprint{Count: 2, MaxID: 5}), &got))
}

func TestSummaryCache_TTL(t *testing.T) {
	rc, mr := newTestRedis(t)
	cache := NewSummaryCache(rc, time.Minute, "0.7", quietLogger())
	ctx := testContext(t)

	key := cache.Key("alice", "summary", Fingerprint{Count: 1, MaxID: 1})
	cache.Store(ctx, key, cachedValue{Net: 1})

	mr.FastForward(2 * time.Minute)

	var got cachedValue
	assert.False(t, cache.Load(ctx, key, &got))
}

func TestSummaryCache_CorruptEntryIsDiscarded(t *testing.T) {
	rc, mr := newTestRedis(t)
	cache := NewSummaryCache(rc, time.Minute, "0.7", quietLogger())
	ctx := testContext(t)

	key := cache.Key("alice", "summary", Fingerprint{Count: 1, MaxID: 1})
	require.NoError(t, mr.Set(key, "{not json"))

	var got cachedValue
	assert.False(t, cache.Load(ctx, key, &got))
	assert.False(t, mr.Exists(key))
}

func TestSummaryCache_RedisDownIsAMiss(t *testing.T) {
	rc, mr := newTestRedis(t)
	cache := NewSummaryCache(rc, time.Minute, "0.7", quietLogger())
	ctx := testContext(t)

	mr.Close()

	key := cache.Key("alice", "summary", Fingerprint{Count: 1, MaxID: 1})
	cache.Store(ctx, key, cachedValue{Net: 1})

	var got cachedValue
	assert.False(t, cache.Load(ctx, key, &got))
}
