package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talentview/sessionkit/internal/security"
)

// RefreshTokenVault is the secondary, long-retention channel holding only
// the refresh token (roughly 30 days, the cookie analogue of the web
// client). It is best-effort: the primary channel stays authoritative.
type RefreshTokenVault interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

const refreshVaultKey = "sessionkit:auth:refresh_token"

type RedisRefreshTokenVault struct {
	client redis.UniversalClient
	ttl    time.Duration
	box    *security.SealedBox
}

func NewRedisRefreshTokenVault(client redis.UniversalClient, ttl time.Duration, box *security.SealedBox) *RedisRefreshTokenVault {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisRefreshTokenVault{client: client, ttl: ttl, box: box}
}

func (v *RedisRefreshTokenVault) Get(ctx context.Context) (string, error) {
	val, err := v.client.Get(ctx, refreshVaultKey).Result()
	if err == redis.Nil {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", err
	}
	return v.box.Open(val)
}

func (v *RedisRefreshTokenVault) Set(ctx context.Context, token string) error {
	sealed, err := v.box.Seal(token)
	if err != nil {
		return err
	}
	return v.client.Set(ctx, refreshVaultKey, sealed, v.ttl).Err()
}

func (v *RedisRefreshTokenVault) Delete(ctx context.Context) error {
	return v.client.Del(ctx, refreshVaultKey).Err()
}
