package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talentview/sessionkit/internal/domain"
	"github.com/talentview/sessionkit/internal/security"
)

// Keys of the primary durable channel.
const (
	KeyAccessToken  = "auth.access_token"
	KeyRefreshToken = "auth.refresh_token"
	KeyTokenExpiry  = "auth.token_expiry" // epoch milliseconds
)

var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRepository is the primary durable credential channel. All
// writes are synchronous; a crash after Set must not lose the value.
type CredentialRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type GormCredentialRepository struct {
	db  *gorm.DB
	box *security.SealedBox
}

func NewGormCredentialRepository(db *gorm.DB, box *security.SealedBox) *GormCredentialRepository {
	return &GormCredentialRepository{db: db, box: box}
}

// OpenCredentialDB opens the durable store and migrates its schema.
// Driver is "sqlite" (dsn is a file path) or "postgres" (dsn is a DSN).
func OpenCredentialDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create credential dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported credentials driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	if err := db.AutoMigrate(&domain.CredentialRecord{}); err != nil {
		return nil, fmt.Errorf("migrate credential store: %w", err)
	}
	return db, nil
}

func (r *GormCredentialRepository) Get(ctx context.Context, key string) (string, error) {
	var rec domain.CredentialRecord
	err := r.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", err
	}
	return r.box.Open(rec.Value)
}

func (r *GormCredentialRepository) Set(ctx context.Context, key, value string) error {
	sealed, err := r.box.Seal(value)
	if err != nil {
		return err
	}
	rec := domain.CredentialRecord{Key: key, Value: sealed}
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *GormCredentialRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&domain.CredentialRecord{}, "key IN ?", keys).Error
}
