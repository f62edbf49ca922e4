package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/talentview/sessionkit/internal/config"
)

func TestNewWiresSessionLayer(t *testing.T) {
	cfg := &config.Config{
		APIBaseURL:        "http://localhost:8081",
		RequestTimeout:    5 * time.Second,
		CredentialsDriver: "sqlite",
		CredentialsDSN:    filepath.Join(t.TempDir(), "credentials.db"),
		EncryptionSecret:  "test-secret-0123456789",
	}

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close(ctx)

	if a.Store == nil || a.Client == nil || a.Logger == nil {
		t.Fatal("app wiring incomplete")
	}

	// The durable store must be usable end to end.
	if err := a.Store.SetSession(ctx, "access-1", "refresh-1", time.Hour); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if tok, ok := a.Store.AccessToken(ctx); !ok || tok != "access-1" {
		t.Fatalf("round trip failed, got %q ok=%v", tok, ok)
	}
}

func TestNewRejectsBadDriver(t *testing.T) {
	cfg := &config.Config{
		APIBaseURL:        "http://localhost:8081",
		RequestTimeout:    5 * time.Second,
		CredentialsDriver: "etcd",
		CredentialsDSN:    "whatever",
	}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
