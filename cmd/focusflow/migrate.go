package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"focusflow/backend/internal/config"
	"focusflow/backend/internal/db"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			database, err := db.OpenSQLite(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			if err := db.RunMigrations(cmd.Context(), database, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			pslog.Ctx(cmd.Context()).Info("migrations applied", "db", cfg.DBPath)
			return nil
		},
	}
}
