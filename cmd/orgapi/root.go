package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/vivadrive/organization-api/internal/config"
	"github.com/vivadrive/organization-api/internal/db"
	"github.com/vivadrive/organization-api/internal/db/memory"
	"github.com/vivadrive/organization-api/internal/db/repositories"
)

var errNeedsDatabase = errors.New("this command needs a persistent store (database.driver=postgres)")

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "orgapi",
		Short:         "Organization API server and management commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"),
		"Path to the YAML config file (default: ./config.yaml when present).")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newCreateUserCommand(opts),
		newSeedCommand(opts),
		newGenKeyCommand(),
		newVersionCommand(),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// stores bundles the organization and user stores of the configured driver.
type stores struct {
	orgs   repositories.OrganizationStore
	users  repositories.UserStore
	pinger repositories.Pinger
	// sqlDB is nil for the memory driver.
	sqlDB *sqlx.DB
}

func (s *stores) Close() error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// openStores connects the configured driver. With migrate set, pending
// migrations are applied to PostgreSQL before the stores are returned.
func openStores(ctx context.Context, cfg *config.DatabaseConfig, migrate bool) (*stores, error) {
	if cfg.Driver == config.DriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		m := memory.New()
		return &stores{orgs: m.Organizations(), users: m.Users(), pinger: m}, nil
	}

	database, err := db.Connect(ctx, cfg.GetDSN(), cfg.MaxConnections, cfg.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database", "host", cfg.Host, "port", cfg.Port, "name", cfg.Name, "ssl_mode", cfg.SSLMode)

	if migrate {
		if err := db.RunMigrations(database.DB, "up"); err != nil {
			database.Close()
			return nil, err
		}
		if version, dirty, err := db.GetMigrationVersion(database.DB); err != nil {
			slog.Warn("failed to get migration version", "error", err)
		} else {
			slog.Info("database schema ready", "version", version, "dirty", dirty)
		}
	}

	return &stores{
		orgs:   repositories.NewOrganizationRepository(database),
		users:  repositories.NewUserRepository(database),
		pinger: database,
		sqlDB:  database,
	}, nil
}
