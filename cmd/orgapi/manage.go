package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vivadrive/organization-api/internal/api"
	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/config"
	"github.com/vivadrive/organization-api/internal/db"
	"github.com/vivadrive/organization-api/internal/db/repositories"
	"github.com/vivadrive/organization-api/internal/seed"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|fix-dirty>",
		Short: "Apply or roll back the embedded schema migrations",
		Long: "up and down apply or roll back every embedded migration.\n" +
			"fix-dirty clears the dirty flag left by an interrupted migration so the next run can retry it.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "fix-dirty"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverMemory {
				return errNeedsDatabase
			}

			database, err := db.Connect(cmd.Context(), cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			if args[0] == "fix-dirty" {
				version, wasDirty, err := db.ClearDirtyFlag(cmd.Context(), database)
				if err != nil {
					return err
				}
				if wasDirty {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared dirty flag at version %d\n", version)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Migration state is already clean (version %d)\n", version)
				}
				return nil
			}

			slog.Info("running migrations", "direction", args[0])
			if err := db.RunMigrations(database.DB, args[0]); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			version, dirty, err := db.GetMigrationVersion(database.DB)
			if err != nil {
				return fmt.Errorf("failed to get migration version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migration completed. Current version: %d (dirty: %v)\n", version, dirty)
			return nil
		},
	}
}

func newCreateUserCommand(opts *rootOptions) *cobra.Command {
	var spec seed.UserSpec
	cmd := &cobra.Command{
		Use:   "createuser",
		Short: "Create an account that can obtain tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(spec.Password) < auth.MinPasswordLength {
				return fmt.Errorf("--password: %w", auth.ErrPasswordTooShort)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverMemory {
				return errNeedsDatabase
			}

			st, err := openStores(cmd.Context(), &cfg.Database, false)
			if err != nil {
				return err
			}
			defer st.Close()

			user, err := seed.CreateUser(cmd.Context(), st.users, spec)
			if errors.Is(err, repositories.ErrUsernameTaken) {
				return fmt.Errorf("user %q already exists", spec.Username)
			}
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&spec.Username, "username", "", "Login name (required).")
	f.StringVar(&spec.Password, "password", "", fmt.Sprintf("Password, at least %d characters (required).", auth.MinPasswordLength))
	f.StringVar(&spec.Email, "email", "", "Email address.")
	f.StringVar(&spec.FirstName, "first-name", "", "Given name.")
	f.StringVar(&spec.LastName, "last-name", "", "Family name.")
	f.BoolVar(&spec.IsStaff, "staff", false, "Mark the account as staff.")
	f.BoolVar(&spec.IsSuperuser, "superuser", false, "Mark the account as superuser (implies --staff).")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the admin and COO accounts and the VivaDrive organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverMemory {
				return errNeedsDatabase
			}

			st, err := openStores(cmd.Context(), &cfg.Database, cfg.Database.AutoMigrate)
			if err != nil {
				return err
			}
			defer st.Close()

			fx, err := seed.Ensure(cmd.Context(), st.users, st.orgs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "admin:        %s (id %d)\n", fx.Admin.Username, fx.Admin.ID)
			fmt.Fprintf(out, "coo:          %s (id %d)\n", fx.COO.Username, fx.COO.ID)
			fmt.Fprintf(out, "organization: %s (id %d)\n", fx.Organization.Name, fx.Organization.ID)
			return nil
		},
	}
}

func newGenKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Print a random JWT signing secret for auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Organization API v%s\n", api.Version)
		},
	}
}
