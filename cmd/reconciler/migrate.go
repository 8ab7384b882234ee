package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/spec-kit/subscription-reconciler/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		return persistence.RunMigrations(ctx, pg.PoolHandle(), logger)
	},
}
