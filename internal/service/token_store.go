package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/talentview/sessionkit/internal/domain"
	"github.com/talentview/sessionkit/internal/repository"
	"github.com/talentview/sessionkit/internal/security"
)

// ExpiryMargin is the safety window before the recorded expiry in which a
// token is already treated as expired, so a call never races a token that
// dies mid-request.
const ExpiryMargin = time.Minute

// TokenStore is the single source of truth for the current credentials.
// It is constructed once and injected; there is no package-level instance.
// Readers always observe the (accessToken, expiresAt) pair in full.
type TokenStore struct {
	mu      sync.Mutex
	session *domain.Session // nil until hydrated

	primary repository.CredentialRepository
	vault   repository.RefreshTokenVault // optional long-retention channel
	logger  *slog.Logger
}

func NewTokenStore(primary repository.CredentialRepository, vault repository.RefreshTokenVault, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{primary: primary, vault: vault, logger: logger}
}

// SetSession stores a freshly issued token pair. All fields are persisted
// synchronously before the in-memory view changes.
func (s *TokenStore) SetSession(ctx context.Context, access, refresh string, expiresIn time.Duration) error {
	expiresAt := time.Now().Add(expiresIn)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, access, refresh, expiresAt); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.storeRefreshInVault(ctx, refresh)
	s.session = &domain.Session{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}
	s.logger.Debug("session stored",
		"access_fp", security.Fingerprint(access),
		"expires_at", expiresAt)
	return nil
}

// UpdateAccessToken replaces only the access token and expiry after a
// successful refresh. The refresh token is left untouched.
func (s *TokenStore) UpdateAccessToken(ctx context.Context, access string, expiresIn time.Duration) error {
	expiresAt := time.Now().Add(expiresIn)
	if expiresIn <= 0 {
		if fromClaims := security.TokenExpiry(access); !fromClaims.IsZero() {
			expiresAt = fromClaims
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.primary.Set(ctx, repository.KeyAccessToken, access); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := s.primary.Set(ctx, repository.KeyTokenExpiry, formatExpiry(expiresAt)); err != nil {
		return fmt.Errorf("persist token expiry: %w", err)
	}
	if s.session == nil {
		s.session = &domain.Session{}
	}
	s.session.AccessToken = access
	s.session.ExpiresAt = expiresAt
	return nil
}

// AccessToken returns the current access token, rehydrating from durable
// storage when the in-memory view is empty (fresh process, reload).
func (s *TokenStore) AccessToken(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(ctx)
	if s.session.HasAccessToken() {
		return s.session.AccessToken, true
	}
	return "", false
}

// RefreshToken reads both durable channels. The primary store is
// authoritative; the long-retention channel serves as fallback when the
// primary lost the token, and is repaired in place when they diverge.
func (s *TokenStore) RefreshToken(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(ctx)

	primaryTok := ""
	if s.session != nil {
		primaryTok = s.session.RefreshToken
	}
	vaultTok := s.vaultRefreshToken(ctx)

	switch {
	case primaryTok == "" && vaultTok == "":
		return "", false
	case primaryTok == "":
		return vaultTok, true
	case vaultTok != primaryTok:
		// Primary is authoritative; repair the secondary channel.
		s.storeRefreshInVault(ctx, primaryTok)
	}
	return primaryTok, true
}

// IsExpired reports whether the access token is absent, has no recorded
// expiry, or expires within ExpiryMargin.
func (s *TokenStore) IsExpired(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(ctx)
	return s.session.ExpiresWithin(ExpiryMargin)
}

// Session returns a consistent snapshot of the full credential pair.
func (s *TokenStore) Session(ctx context.Context) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(ctx)
	if !s.session.HasAccessToken() {
		return domain.Session{}, false
	}
	return *s.session, true
}

// Clear destroys the session in memory and in both durable channels.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &domain.Session{}

	var errs []error
	if err := s.primary.Delete(ctx, repository.KeyAccessToken, repository.KeyRefreshToken, repository.KeyTokenExpiry); err != nil {
		errs = append(errs, fmt.Errorf("clear primary store: %w", err))
	}
	if s.vault != nil {
		if err := s.vault.Delete(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear refresh vault: %w", err))
		}
	}
	return errors.Join(errs...)
}

// hydrate fills the in-memory session from the primary store. Callers must
// hold s.mu. After hydrate s.session is never nil.
func (s *TokenStore) hydrate(ctx context.Context) {
	if s.session != nil {
		return
	}
	sess := &domain.Session{}
	if v, err := s.primary.Get(ctx, repository.KeyAccessToken); err == nil {
		sess.AccessToken = v
	}
	if v, err := s.primary.Get(ctx, repository.KeyRefreshToken); err == nil {
		sess.RefreshToken = v
	}
	if v, err := s.primary.Get(ctx, repository.KeyTokenExpiry); err == nil {
		if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			sess.ExpiresAt = time.UnixMilli(ms)
		}
	}
	s.session = sess
}

func (s *TokenStore) persist(ctx context.Context, access, refresh string, expiresAt time.Time) error {
	if err := s.primary.Set(ctx, repository.KeyAccessToken, access); err != nil {
		return err
	}
	if err := s.primary.Set(ctx, repository.KeyRefreshToken, refresh); err != nil {
		return err
	}
	return s.primary.Set(ctx, repository.KeyTokenExpiry, formatExpiry(expiresAt))
}

// storeRefreshInVault writes to the secondary channel best-effort. The
// primary store already holds the token.
func (s *TokenStore) storeRefreshInVault(ctx context.Context, refresh string) {
	if s.vault == nil || refresh == "" {
		return
	}
	if err := s.vault.Set(ctx, refresh); err != nil {
		s.logger.Warn("refresh vault write failed", "error", err)
	}
}

func (s *TokenStore) vaultRefreshToken(ctx context.Context) string {
	if s.vault == nil {
		return ""
	}
	tok, err := s.vault.Get(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrCredentialNotFound) {
			s.logger.Warn("refresh vault read failed", "error", err)
		}
		return ""
	}
	return tok
}

func formatExpiry(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
