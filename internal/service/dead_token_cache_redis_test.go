package service

import (
	"context"
	"testing"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
)

func TestRedisDeadTokenCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	cache := NewRedisDeadTokenCache(client, "dead_test")

	if _, ok, err := cache.Get(ctx, "tok-1"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, "tok-1", ReasonSessionRevokedOrExpired, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	reason, ok, err := cache.Get(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if reason != ReasonSessionRevokedOrExpired {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestRedisDeadTokenCacheKeysAreDigests(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	cache := NewRedisDeadTokenCache(client, "dead_test")

	if err := cache.Set(ctx, "raw-secret-token", ReasonSessionExpired, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	keys := server.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	want := "dead_test:" + security.HashToken("raw-secret-token")
	if keys[0] != want {
		t.Fatalf("expected digest key %q, got %q", want, keys[0])
	}
}

func TestRedisDeadTokenCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	cache := NewRedisDeadTokenCache(client, "dead_test")

	if err := cache.Set(ctx, "tok-2", ReasonSessionNotFound, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	server.FastForward(2 * time.Second)
	if _, ok, err := cache.Get(ctx, "tok-2"); err != nil || ok {
		t.Fatalf("expected expiry, ok=%v err=%v", ok, err)
	}
}

func TestRedisDeadTokenCacheNilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	cache := NewRedisDeadTokenCache(nil, "")

	if err := cache.Set(ctx, "tok", ReasonSessionExpired, time.Minute); err != nil {
		t.Fatalf("set on nil client: %v", err)
	}
	if _, ok, err := cache.Get(ctx, "tok"); err != nil || ok {
		t.Fatalf("expected miss on nil client, ok=%v err=%v", ok, err)
	}
}
