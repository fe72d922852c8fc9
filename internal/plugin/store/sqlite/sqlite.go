// Package sqlite registers a single-file SQLite datastore. It shares the GORM
// store with the postgres plugin and suits development and small deployments.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/plugin/store/gormstore"
	registrycache "github.com/chirino/messaging-service/internal/registry/cache"
	registrymigrate "github.com/chirino/messaging-service/internal/registry/migrate"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.MessagingStore, error) {
			cfg := config.FromContext(ctx)
			dsn, err := DSN(cfg.DBURL)
			if err != nil {
				return nil, err
			}
			db, err := gormstore.Open(ctx, sqlite.Open(dsn), cfg)
			if err != nil {
				return nil, err
			}
			return gormstore.New(db, cfg, registrycache.UnreadCacheFromContext(ctx)), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

// DSN turns a database path or sqlite: URL into a driver DSN with foreign keys
// enforced and write transactions taking the lock up front.
func DSN(dbURL string) (string, error) {
	path := strings.TrimSpace(dbURL)
	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		path = strings.TrimPrefix(path, prefix)
	}
	if path == "" {
		return "", fmt.Errorf("sqlite datastore requires --db-url to name a database file")
	}
	if path == ":memory:" {
		return "", fmt.Errorf("sqlite datastore does not support in-memory databases; name a file instead")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", nil
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	dsn, err := DSN(cfg.DBURL)
	if err != nil {
		return err
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := gormstore.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("SQLite schema migration complete")
	return nil
}
