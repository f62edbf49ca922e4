package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/talentview/sessionkit/internal/security"
)

func newSQLiteRepoForTest(t *testing.T, box *security.SealedBox) *GormCredentialRepository {
	t.Helper()
	db, err := OpenCredentialDB("sqlite", filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewGormCredentialRepository(db, box)
}

func TestCredentialRepositorySetGetDelete(t *testing.T) {
	repo := newSQLiteRepoForTest(t, nil)
	ctx := context.Background()

	if _, err := repo.Get(ctx, KeyAccessToken); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.Set(ctx, KeyAccessToken, "tok-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := repo.Get(ctx, KeyAccessToken)
	if err != nil || got != "tok-1" {
		t.Fatalf("get = %q, %v", got, err)
	}

	// Save must upsert, not duplicate.
	if err := repo.Set(ctx, KeyAccessToken, "tok-2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = repo.Get(ctx, KeyAccessToken)
	if err != nil || got != "tok-2" {
		t.Fatalf("get after overwrite = %q, %v", got, err)
	}

	if err := repo.Delete(ctx, KeyAccessToken, KeyRefreshToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, KeyAccessToken); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCredentialRepositorySealsValuesAtRest(t *testing.T) {
	box, err := security.NewSealedBox("a-secret-of-sufficient-length")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	repo := newSQLiteRepoForTest(t, box)
	ctx := context.Background()

	if err := repo.Set(ctx, KeyRefreshToken, "refresh-plain"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := repo.Get(ctx, KeyRefreshToken)
	if err != nil || got != "refresh-plain" {
		t.Fatalf("sealed round trip = %q, %v", got, err)
	}

	// Bypass the box to confirm ciphertext actually hit the row.
	raw := NewGormCredentialRepository(repo.db, nil)
	stored, err := raw.Get(ctx, KeyRefreshToken)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if stored == "refresh-plain" {
		t.Fatal("value stored in plaintext despite sealing")
	}
}
