// Package gormstore implements the MessagingStore on top of GORM. The postgres
// and sqlite store plugins share it and differ only in how they connect.
package gormstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/config"
	registrycache "github.com/chirino/messaging-service/internal/registry/cache"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

//go:embed db/postgres.sql
var postgresSchemaSQL string

//go:embed db/sqlite.sql
var sqliteSchemaSQL string

// Re-export error types from registry/store so store code reads naturally.
type (
	NotFoundError   = registrystore.NotFoundError
	ValidationError = registrystore.ValidationError
	ConflictError   = registrystore.ConflictError
	ForbiddenError  = registrystore.ForbiddenError
	IntegrityError  = registrystore.IntegrityError
)

var _ registrystore.MessagingStore = (*Store)(nil)

// Store implements MessagingStore using GORM.
type Store struct {
	db          *gorm.DB
	cfg         *config.Config
	unreadCache registrycache.UnreadCountCache
}

// New wraps an open database. A nil cfg uses the defaults; a nil cache
// disables unread count caching.
func New(db *gorm.DB, cfg *config.Config, unreadCache registrycache.UnreadCountCache) *Store {
	if cfg == nil {
		defaults := config.DefaultConfig()
		cfg = &defaults
	}
	return &Store{db: db, cfg: cfg, unreadCache: unreadCache}
}

// Open connects through dialector and applies the pool settings from cfg.
// Pool gauges are refreshed until ctx is done.
func Open(ctx context.Context, dialector gorm.Dialector, cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialector.Name(), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	if security.DBPoolMaxConnections != nil {
		security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
	}

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if security.DBPoolOpenConnections != nil {
					security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
				}
			}
		}
	}()
	return db, nil
}

// Migrate applies the embedded schema for the database's dialect. The schema
// only uses IF NOT EXISTS statements, so running it again is a no-op.
func Migrate(ctx context.Context, db *gorm.DB) error {
	var schema string
	switch name := db.Dialector.Name(); name {
	case "postgres":
		schema = postgresSchemaSQL
	case "sqlite":
		schema = sqliteSchemaSQL
	default:
		return fmt.Errorf("migration: unsupported dialect %q", name)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	return nil
}

// threadStrategy picks how GetMessageWithReplies loads a subtree.
func (s *Store) threadStrategy() string {
	switch s.cfg.ThreadQueryMode {
	case config.ThreadQueryRecursive:
		return registrystore.ThreadStrategyRecursive
	case config.ThreadQueryPrefetch:
		return registrystore.ThreadStrategyPrefetch
	}
	switch s.db.Dialector.Name() {
	case "postgres", "sqlite", "mysql":
		return registrystore.ThreadStrategyRecursive
	default:
		return registrystore.ThreadStrategyPrefetch
	}
}

// invalidateUnread drops cached unread counts. Failures are logged; the
// entries still expire after UnreadCountTTL.
func (s *Store) invalidateUnread(ctx context.Context, userIDs ...uuid.UUID) {
	if s.unreadCache == nil || !s.unreadCache.Available() || len(userIDs) == 0 {
		return
	}
	if err := s.unreadCache.Remove(ctx, uniqueIDs(userIDs)...); err != nil {
		log.Warn("Failed to invalidate unread count cache", "users", len(userIDs), "err", err)
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// integrityError wraps a failure inside a multi-step write. Errors the caller
// can act on pass through unchanged.
func integrityError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		notFound   *NotFoundError
		validation *ValidationError
		conflict   *ConflictError
		forbidden  *ForbiddenError
		integrity  *IntegrityError
	)
	if errors.As(err, &notFound) || errors.As(err, &validation) || errors.As(err, &conflict) ||
		errors.As(err, &forbidden) || errors.As(err, &integrity) {
		return err
	}
	return &IntegrityError{Op: op, Err: err}
}
