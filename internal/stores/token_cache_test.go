package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestTokenCachePutGetEvict(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cache := NewTokenCache(rdb, "ag")

	if err := cache.Put(ctx, "u1", "access", "tok-a", time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := cache.Get(ctx, "u1", "access")
	if err != nil || !ok || got != "tok-a" {
		t.Fatalf("Get = (%q, %v, %v), want (tok-a, true, nil)", got, ok, err)
	}

	// Overwrite replaces the slot value.
	if err := cache.Put(ctx, "u1", "access", "tok-b", time.Minute); err != nil {
		t.Fatalf("overwrite Put failed: %v", err)
	}
	got, _, _ = cache.Get(ctx, "u1", "access")
	if got != "tok-b" {
		t.Fatalf("expected overwritten value, got %q", got)
	}

	if err := cache.Evict(ctx, "u1", "access"); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "u1", "access"); ok {
		t.Fatal("expected slot to be gone after Evict")
	}

	// Eviction is idempotent.
	if err := cache.Evict(ctx, "u1", "access"); err != nil {
		t.Fatalf("second Evict failed: %v", err)
	}
}

func TestTokenCacheSlotsAreIndependent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cache := NewTokenCache(rdb, "ag")

	if err := cache.Put(ctx, "u1", "access", "tok-a", time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(ctx, "u1", "refresh", "tok-r", time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(ctx, "u2", "access", "tok-x", time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if got, _, _ := cache.Get(ctx, "u1", "access"); got != "tok-a" {
		t.Fatalf("u1 access = %q", got)
	}
	if got, _, _ := cache.Get(ctx, "u1", "refresh"); got != "tok-r" {
		t.Fatalf("u1 refresh = %q", got)
	}
	if got, _, _ := cache.Get(ctx, "u2", "access"); got != "tok-x" {
		t.Fatalf("u2 access = %q", got)
	}
}

func TestTokenCachePutRejectsNonPositiveTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cache := NewTokenCache(rdb, "ag")
	if err := cache.Put(context.Background(), "u1", "access", "tok-a", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestTokenCacheSlotExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cache := NewTokenCache(rdb, "ag")

	if err := cache.Put(ctx, "u1", "access", "tok-a", time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, err := cache.Get(ctx, "u1", "access"); err != nil || ok {
		t.Fatalf("expected expired slot to read absent, ok=%v err=%v", ok, err)
	}
}

func TestTokenCacheRevocation(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cache := NewTokenCache(rdb, "ag")

	revoked, err := cache.IsRevoked(ctx, "tok-a")
	if err != nil || revoked {
		t.Fatalf("fresh token reported revoked=%v err=%v", revoked, err)
	}

	if err := cache.Revoke(ctx, "tok-a", time.Minute); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err = cache.IsRevoked(ctx, "tok-a")
	if err != nil || !revoked {
		t.Fatalf("expected revoked=true, got revoked=%v err=%v", revoked, err)
	}

	// The entry expires with the token it blocks.
	mr.FastForward(2 * time.Minute)
	revoked, err = cache.IsRevoked(ctx, "tok-a")
	if err != nil || revoked {
		t.Fatalf("expected revocation entry to expire, revoked=%v err=%v", revoked, err)
	}
}

func TestTokenCacheRevokeExpiredTokenIsNoOp(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cache := NewTokenCache(rdb, "ag")

	if err := cache.Revoke(ctx, "tok-a", 0); err != nil {
		t.Fatalf("Revoke with zero ttl failed: %v", err)
	}
	if err := cache.Revoke(ctx, "tok-a", -time.Second); err != nil {
		t.Fatalf("Revoke with negative ttl failed: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys, got %v", mr.Keys())
	}
}

func TestTokenCacheTransportFailures(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cache := NewTokenCache(rdb, "ag")
	ctx := context.Background()

	mr.Close()

	if err := cache.Put(ctx, "u1", "access", "tok-a", time.Minute); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Put: expected ErrCacheUnavailable, got %v", err)
	}
	if _, _, err := cache.Get(ctx, "u1", "access"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Get: expected ErrCacheUnavailable, got %v", err)
	}
	if err := cache.Revoke(ctx, "tok-a", time.Minute); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Revoke: expected ErrCacheUnavailable, got %v", err)
	}

	// IsRevoked must surface the failure as an error, never as "not revoked".
	if _, err := cache.IsRevoked(ctx, "tok-a"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("IsRevoked: expected ErrCacheUnavailable, got %v", err)
	}
}
