package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	return c, s
}

func TestMemoryExpiresEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := c.Set(ctx, "kam:K1", []string{"CL001", "CL003"}, 30*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := c.Get(ctx, "kam:K1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, []string{"CL001", "CL003"}) {
		t.Errorf("unexpected values %v", got)
	}

	now = now.Add(30 * time.Second)
	if _, ok, _ := c.Get(ctx, "kam:K1"); ok {
		t.Error("expected entry to expire at its TTL")
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	values := []string{"CL001"}
	_ = c.Set(ctx, "k", values, time.Minute)
	values[0] = "mutated"

	got, _, _ := c.Get(ctx, "k")
	got[0] = "also mutated"

	again, _, _ := c.Get(ctx, "k")
	if again[0] != "CL001" {
		t.Errorf("cache leaked a shared slice: %v", again)
	}
}

func TestMemoryIgnoresNonPositiveTTL(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	_ = c.Set(ctx, "k", []string{"x"}, 0)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("zero TTL must not cache")
	}
}

func TestRedisSetAndGet(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := c.Set(ctx, "kam:K1", []string{"CL001"}, 30*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := c.Get(ctx, "kam:K1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, []string{"CL001"}) {
		t.Errorf("unexpected values %v", got)
	}
	if !s.Exists("backoffice:set:kam:K1") {
		t.Error("expected prefixed key in redis")
	}
}

func TestRedisEmptySetIsAHit(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "kam:K9", nil, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := c.Get(ctx, "kam:K9")
	if err != nil || !ok {
		t.Fatalf("expected cached empty set, got ok=%v err=%v", ok, err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty set, got %v", got)
	}
}

func TestRedisExpiry(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	_ = c.Set(ctx, "kam:K1", []string{"CL001"}, 30*time.Second)

	s.FastForward(31 * time.Second)

	if _, ok, err := c.Get(ctx, "kam:K1"); ok || err != nil {
		t.Errorf("expected miss after TTL, got ok=%v err=%v", ok, err)
	}
}

func TestRedisMissingKey(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()

	if _, ok, err := c.Get(context.Background(), "missing"); ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	if _, err := NewRedisCache("redis://" + addr); err == nil {
		t.Error("expected connection error")
	}
}
