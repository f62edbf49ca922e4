package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/talentview/sessionkit/internal/client"
	"github.com/talentview/sessionkit/internal/config"
	"github.com/talentview/sessionkit/internal/observability"
	"github.com/talentview/sessionkit/internal/repository"
	"github.com/talentview/sessionkit/internal/security"
	"github.com/talentview/sessionkit/internal/service"
)

// App owns the wired session layer: durable stores, token store and the
// authenticated API client.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *service.TokenStore
	Client        *client.Client
	Observability *observability.Runtime

	redis *redis.Client
}

// New builds the full dependency graph from configuration. onTerminal
// fires once per failure episode when a token refresh fails for good.
func New(ctx context.Context, cfg *config.Config, onTerminal func()) (*App, error) {
	logger, loggerProvider, err := observability.InitLogger(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	runtime.LoggerProvider = loggerProvider

	var box *security.SealedBox
	if cfg.EncryptionSecret != "" {
		box, err = security.NewSealedBox(cfg.EncryptionSecret)
		if err != nil {
			return nil, fmt.Errorf("init credential encryption: %w", err)
		}
	}

	db, err := repository.OpenCredentialDB(cfg.CredentialsDriver, cfg.CredentialsDSN)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	primary := repository.NewGormCredentialRepository(db, box)

	app := &App{Config: cfg, Logger: logger, Observability: runtime}

	var vault repository.RefreshTokenVault
	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		vault = repository.NewRedisRefreshTokenVault(app.redis, cfg.RefreshTokenTTL, box)
	}

	app.Store = service.NewTokenStore(primary, vault, logger)
	app.Client = client.New(cfg, app.Store, onTerminal, logger)
	return app, nil
}

// Close flushes telemetry and closes the redis connection if one exists.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.Observability != nil {
		if err := a.Observability.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
