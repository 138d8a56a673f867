// Command migrate manages the attendance and embedding cache schema.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
)

const connectTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply or inspect database migrations",
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *database.Migrator, logger *slog.Logger, _ []string) error {
				if err := m.Up(); err != nil {
					return err
				}
				return logVersion(m, logger, "migrations applied")
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *database.Migrator, logger *slog.Logger, _ []string) error {
				if err := m.Down(); err != nil {
					return err
				}
				return logVersion(m, logger, "migration rolled back")
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *database.Migrator, logger *slog.Logger, _ []string) error {
				return logVersion(m, logger, "current schema")
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it (clears a dirty state)",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *database.Migrator, logger *slog.Logger, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil || version <= 0 {
					return fmt.Errorf("invalid version %q", args[0])
				}
				if err := m.Force(version); err != nil {
					return err
				}
				return logVersion(m, logger, "schema version forced")
			}),
		},
	)
}

// withMigrator connects with the configured DATABASE_URL and hands fn a
// migrator that is closed afterwards.
func withMigrator(fn func(*database.Migrator, *slog.Logger, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Environment)

		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		defer cancel()

		db, err := database.OpenSQL(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer func() { _ = db.Close() }()

		migrator, err := database.NewMigrator(db, database.DefaultDatabaseName)
		if err != nil {
			return err
		}
		defer func() { _ = migrator.Close() }()

		return fn(migrator, logger, args)
	}
}

func logVersion(m *database.Migrator, logger *slog.Logger, msg string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		logger.Warn(msg, slog.Uint64("version", uint64(version)), slog.Bool("dirty", true))
		return nil
	}
	logger.Info(msg, slog.Uint64("version", uint64(version)))
	return nil
}
