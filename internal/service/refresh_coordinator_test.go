package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talentview/sessionkit/internal/domain"
)

func TestRefreshUpdatesStore(t *testing.T) {
	store := NewTokenStore(newInMemoryCredentialRepo(), nil, testLogger())
	ctx := context.Background()
	if err := store.SetSession(ctx, "old", "refresh-1", time.Second); err != nil {
		t.Fatalf("set session: %v", err)
	}

	var gotRefresh string
	coord := NewRefreshCoordinator(store, func(_ context.Context, refreshToken string) (*domain.RefreshResponse, error) {
		gotRefresh = refreshToken
		return &domain.RefreshResponse{AccessToken: "new", ExpiresIn: 900}, nil
	}, nil, testLogger())

	tok, err := coord.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tok != "new" {
		t.Fatalf("unexpected token %q", tok)
	}
	if gotRefresh != "refresh-1" {
		t.Fatalf("exchange saw refresh token %q", gotRefresh)
	}
	if stored, _ := store.AccessToken(ctx); stored != "new" {
		t.Fatalf("store holds %q", stored)
	}
	if store.IsExpired(ctx) {
		t.Fatal("refreshed 900s token must not be expired")
	}
}

func TestConcurrentRefreshSingleExchange(t *testing.T) {
	store := NewTokenStore(newInMemoryCredentialRepo(), nil, testLogger())
	ctx := context.Background()
	if err := store.SetSession(ctx, "old", "refresh-1", time.Second); err != nil {
		t.Fatalf("set session: %v", err)
	}

	var exchanges atomic.Int64
	release := make(chan struct{})
	coord := NewRefreshCoordinator(store, func(context.Context, string) (*domain.RefreshResponse, error) {
		exchanges.Add(1)
		<-release
		return &domain.RefreshResponse{AccessToken: "new", ExpiresIn: 900}, nil
	}, nil, testLogger())

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = coord.Refresh(ctx)
		}(i)
	}
	// Let the callers pile onto the in-flight exchange before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := exchanges.Load(); got != 1 {
		t.Fatalf("expected a single exchange, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "new" {
			t.Fatalf("caller %d got %q", i, tokens[i])
		}
	}
}

func TestRefreshWithoutTokenTerminates(t *testing.T) {
	store := NewTokenStore(newInMemoryCredentialRepo(), nil, testLogger())
	var terminal atomic.Int64
	coord := NewRefreshCoordinator(store, func(context.Context, string) (*domain.RefreshResponse, error) {
		t.Fatal("exchange must not run without a refresh token")
		return nil, nil
	}, func() { terminal.Add(1) }, testLogger())

	_, err := coord.Refresh(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if terminal.Load() != 1 {
		t.Fatalf("terminal hook fired %d times", terminal.Load())
	}
}

func TestFailedExchangeClearsSessionAndFiresHookOnce(t *testing.T) {
	store := NewTokenStore(newInMemoryCredentialRepo(), nil, testLogger())
	ctx := context.Background()
	if err := store.SetSession(ctx, "old", "refresh-1", time.Second); err != nil {
		t.Fatalf("set session: %v", err)
	}

	var terminal atomic.Int64
	release := make(chan struct{})
	coord := NewRefreshCoordinator(store, func(context.Context, string) (*domain.RefreshResponse, error) {
		<-release
		return nil, errors.New("refresh token revoked")
	}, func() { terminal.Add(1) }, testLogger())

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Refresh(ctx)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if !errors.Is(errs[i], ErrRefreshFailed) {
			t.Fatalf("caller %d: expected ErrRefreshFailed, got %v", i, errs[i])
		}
	}
	if got := terminal.Load(); got != 1 {
		t.Fatalf("one failure episode must fire the hook once, fired %d times", got)
	}
	if _, ok := store.Session(ctx); ok {
		t.Fatal("session must be cleared after a failed exchange")
	}
}

func TestRefreshFallsBackToClaimExpiry(t *testing.T) {
	store := NewTokenStore(newInMemoryCredentialRepo(), nil, testLogger())
	ctx := context.Background()
	if err := store.SetSession(ctx, "old", "refresh-1", time.Second); err != nil {
		t.Fatalf("set session: %v", err)
	}

	coord := NewRefreshCoordinator(store, func(context.Context, string) (*domain.RefreshResponse, error) {
		// Server omitted expiresIn; the token itself carries no exp claim
		// either, so the session must read as expired and trigger again.
		return &domain.RefreshResponse{AccessToken: "opaque"}, nil
	}, nil, testLogger())

	if _, err := coord.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !store.IsExpired(ctx) {
		t.Fatal("token with unknown expiry must count as expired")
	}
}
