package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/domain/users"
)

const sqlitePrefix = "sqlite:"

// Open connects to PostgreSQL, or to SQLite when the DSN starts with
// "sqlite:" (local development and tests).
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}

	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, sqlitePrefix) {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if strings.HasPrefix(dsn, sqlitePrefix) {
		// SQLite serialises writers; one connection keeps in-memory
		// databases shared across the pool.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates or updates the users, sessions, artworks and orders tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&users.User{},
		&users.Session{},
		&catalog.Artwork{},
		&orders.Order{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// WithTimeout bounds a single persistence call. Every store operation goes
// through it so a hung backend surfaces as a Timeout error.
func WithTimeout(ctx context.Context, db *gorm.DB, d time.Duration) (*gorm.DB, context.CancelFunc) {
	if d <= 0 {
		return db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return db.WithContext(ctx), cancel
}

// LikePattern turns free text into a case-insensitive substring pattern for
// "LOWER(col) LIKE ? ESCAPE '\'".
func LikePattern(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
