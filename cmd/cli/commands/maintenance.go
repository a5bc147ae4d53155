package commands

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/internal/api"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Cfg.HTTPAddr
			}
			origins, _ := cmd.Flags().GetStringSlice("cors-origin")

			deps := api.Deps{
				Config:         app.Cfg,
				Store:          app.Database,
				Cache:          app.Cache,
				Auth:           app.Auth,
				Calendar:       app.Calendar,
				Notifier:       app.Notifier,
				Assignments:    app.Assignments,
				Users:          app.Users,
				Metrics:        app.Metrics,
				Logger:         app.Logger,
				AllowedOrigins: origins,
			}
			// a nil *sheetsclient.Client must not become a non-nil interface
			if app.SheetsClient != nil {
				deps.Sheets = app.SheetsClient
			}

			ctx, stop := signal.NotifyContext(app.Ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return api.NewServer(deps).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (defaults to httpAddr from the config)")
	cmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origins")

	return cmd
}

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Postgres == nil {
				return errors.New("migrate needs DATABASE_URL; the in-memory store has no schema")
			}

			applied, err := app.Postgres.RunMigrations(app.Ctx)
			if err != nil {
				return err
			}

			if len(applied) == 0 {
				fmt.Fprintln(app.out(), "Database is up to date.")
				return nil
			}
			fmt.Fprintf(app.out(), "\n✓ Applied %d migrations:\n", len(applied))
			for _, name := range applied {
				fmt.Fprintf(app.out(), "  %s\n", name)
			}
			fmt.Fprintln(app.out())
			return nil
		},
	}
}

// ResetTestDataCmd creates the resetTestData command
func ResetTestDataCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resetTestData",
		Short: "Wipe all data and seed the fixture users (test environment only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")

			app.Logger.Debug("resetTestData command", zap.String("env", app.Cfg.Env))

			users, err := services.ResetTestData(app.Ctx, app.Database, app.Cfg.Env, password, app.Logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(app.out(), "\n✓ Test data reset. Seeded %d users:\n\n", len(users))
			for _, u := range users {
				fmt.Fprintf(app.out(), "  %-8s %-22s %s\n", u.ID, u.Email, u.Roles)
			}
			fmt.Fprintln(app.out())
			return nil
		},
	}

	cmd.Flags().String("password", "", fmt.Sprintf("Password for every seeded user (default %q)", services.DefaultFixturePassword))

	return cmd
}
