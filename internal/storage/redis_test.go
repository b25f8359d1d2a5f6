package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/tax-ledger/internal/config"
)

func miniredisConfig(t *testing.T) *config.RedisConfig {
	mr := miniredis.RunT(t)
	return &config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 4,
	}
}

func TestNewRedisCache(t *testing.T) {
	ctx := testContext(t)
	cache, err := NewRedisCache(ctx, miniredisConfig(t))
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if err := cache.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	cfg := &config.RedisConfig{Host: "127.0.0.1", Port: "1", MaxConnections: 1}
	if _, err := NewRedisCache(testContext(t), cfg); err == nil {
		t.Fatal("expected an error for an unreachable server")
	}
}

func TestRedisCache_SetGetDel(t *testing.T) {
	ctx := testContext(t)
	cache, err := NewRedisCache(ctx, miniredisConfig(t))
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, found, err := cache.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get() = %q, %v, %v", got, found, err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}

	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if _, found, err := cache.Get(ctx, "k"); err != nil || found {
		t.Errorf("Get() after Del found=%v err=%v", found, err)
	}
}
