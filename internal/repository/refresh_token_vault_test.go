package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisVaultForTest(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisRefreshTokenVault) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, NewRedisRefreshTokenVault(client, ttl, nil)
}

func TestRefreshTokenVaultRoundTrip(t *testing.T) {
	_, vault := newRedisVaultForTest(t, time.Hour)
	ctx := context.Background()

	if _, err := vault.Get(ctx); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := vault.Set(ctx, "refresh-abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := vault.Get(ctx)
	if err != nil || got != "refresh-abc" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if err := vault.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := vault.Get(ctx); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestRefreshTokenVaultAppliesRetentionTTL(t *testing.T) {
	server, vault := newRedisVaultForTest(t, time.Minute)
	ctx := context.Background()

	if err := vault.Set(ctx, "refresh-abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	ttl := server.TTL(refreshVaultKey)
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL %v", ttl)
	}

	server.FastForward(2 * time.Minute)
	if _, err := vault.Get(ctx); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected expiry after TTL, got %v", err)
	}
}
