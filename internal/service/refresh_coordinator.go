package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/talentview/sessionkit/internal/domain"
	"github.com/talentview/sessionkit/internal/observability"
	"github.com/talentview/sessionkit/internal/security"
)

var (
	// ErrNoRefreshToken means no refresh token exists in any channel; the
	// session cannot be recovered.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrRefreshFailed wraps a failed refresh exchange. The session has
	// already been torn down when this is returned.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// RefreshFunc exchanges a refresh token for a new access token. It must not
// go through the authenticated pipeline (auth endpoints are exempt).
type RefreshFunc func(ctx context.Context, refreshToken string) (*domain.RefreshResponse, error)

// RefreshCoordinator guarantees at most one in-flight refresh. Concurrent
// callers attach to the running operation and share its outcome; the
// terminal-failure hook fires exactly once per failure episode regardless
// of how many callers were waiting.
type RefreshCoordinator struct {
	store      *TokenStore
	refresh    RefreshFunc
	onTerminal func()
	logger     *slog.Logger

	group singleflight.Group
}

func NewRefreshCoordinator(store *TokenStore, refresh RefreshFunc, onTerminal func(), logger *slog.Logger) *RefreshCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshCoordinator{store: store, refresh: refresh, onTerminal: onTerminal, logger: logger}
}

// Refresh returns a valid access token, performing at most one network
// exchange no matter how many goroutines call simultaneously.
func (c *RefreshCoordinator) Refresh(ctx context.Context) (string, error) {
	start := time.Now()
	result, err, shared := c.group.Do("token_refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		observability.RecordTokenRefresh(ctx, "error", shared)
		return "", err
	}
	observability.RecordTokenRefresh(ctx, "ok", shared)
	c.logger.Debug("token refresh settled",
		"shared", shared,
		"duration", time.Since(start))
	return result.(string), nil
}

func (c *RefreshCoordinator) doRefresh(ctx context.Context) (any, error) {
	refreshToken, ok := c.store.RefreshToken(ctx)
	if !ok {
		c.terminate(ctx, ErrNoRefreshToken)
		return nil, ErrNoRefreshToken
	}

	resp, err := c.refresh(ctx, refreshToken)
	if err != nil {
		c.terminate(ctx, err)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if err := c.store.UpdateAccessToken(ctx, resp.AccessToken, expiresIn); err != nil {
		// The exchange succeeded; keep serving the in-flight callers with
		// the new token even though persistence failed.
		c.logger.Warn("refreshed token not persisted", "error", err)
	}
	c.logger.Info("access token refreshed",
		"access_fp", security.Fingerprint(resp.AccessToken),
		"expires_in", expiresIn)
	return resp.AccessToken, nil
}

// terminate tears the session down and fires the logout hook. It runs
// inside the single-flight body, so one failure episode triggers it once.
func (c *RefreshCoordinator) terminate(ctx context.Context, cause error) {
	c.logger.Warn("refresh failed, clearing session", "error", cause)
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("session teardown incomplete", "error", err)
	}
	if c.onTerminal != nil {
		c.onTerminal()
	}
}
