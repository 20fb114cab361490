package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/pkg/database"
)

// NewMigrateCommand applies pending SQL migrations. Subcommands revert or inspect them.
func NewMigrateCommand() *cobra.Command {
	var dir string

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *database.Migrator, logr *zap.Logger) error) error {
		cfg, logr, err := bootstrap()
		if err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck

		if dir == "" {
			dir = cfg.Database.MigrationsDir
		}
		migrator, err := database.OpenMigrator(cmd.Context(), cfg.Database, dir, logr)
		if err != nil {
			return fmt.Errorf("could not open migrations: %w", err)
		}
		defer migrator.Close() //nolint:errcheck
		return fn(cmd.Context(), migrator, logr.With(zap.String("dir", dir)))
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending migrations to the PostgreSQL database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *database.Migrator, logr *zap.Logger) error {
				status, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("could not migrate db: %w", err)
				}
				logr.Info("migrations complete", zap.Uint("version", status.Version))
				return nil
			})
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Directory holding NNNN_name.up.sql/.down.sql files (defaults to DB_MIGRATIONS_DIR)")

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Reverts applied migrations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *database.Migrator, logr *zap.Logger) error {
				status, err := m.Down(ctx, steps)
				if err != nil {
					return fmt.Errorf("could not revert migrations: %w", err)
				}
				logr.Info("migrations reverted", zap.Int("steps", steps), zap.Uint("version", status.Version))
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert (0 reverts all)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Prints the applied schema version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *database.Migrator, logr *zap.Logger) error {
				status, err := m.Status()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", status.Version, status.Dirty)
				return nil
			})
		},
	}

	cmd.AddCommand(down, version)
	return cmd
}
