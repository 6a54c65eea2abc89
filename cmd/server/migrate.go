package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfwatch/backend/internal/infrastructure/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the PostgreSQL schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown},
		RunE: func(_ *cobra.Command, args []string) error {
			direction := postgres.MigrateUp
			if len(args) == 1 {
				direction = args[0]
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer syncLogger(log)

			if cfg.Store.Type != "postgres" {
				return fmt.Errorf("migrations need store type 'postgres', got: %s", cfg.Store.Type)
			}

			db, err := postgres.NewConnection(cfg.Database.DSN(), cfg.Database.MaxOpenConns)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return postgres.Migrate(db.DB, direction, log)
		},
	}
}
