package migrate

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/config"
	registrymigrate "github.com/chirino/messaging-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Store plugins register their migrators alongside their loaders.
	_ "github.com/chirino/messaging-service/internal/plugin/store/postgres"
	_ "github.com/chirino/messaging-service/internal/plugin/store/sqlite"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("MESSAGING_SERVICE_DB_URL"),
				Usage:    "Database connection URL (or SQLite file path)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("MESSAGING_SERVICE_DB_KIND"),
				Usage:   "Store backend (postgres|sqlite)",
				Value:   "postgres",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			switch cfg.DatastoreType {
			case "postgres", "sqlite":
			default:
				return fmt.Errorf("invalid db kind %q; valid: postgres|sqlite", cfg.DatastoreType)
			}
			if err := cfg.ApplyEnvOverrides(); err != nil {
				return err
			}
			// Running this command is the request to migrate.
			cfg.DatastoreMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "kind", cfg.DatastoreType)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
