package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crane-availability-backend/internal/db"
)

func migrateCmd() *cobra.Command {
	var skipSeed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed the default shifts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbCfg := app.cfg.Database
			dbCfg.SeedDefaultShifts = false

			gormDB, err := db.Init(&dbCfg, app.logger.Named("db"))
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			if skipSeed {
				return nil
			}

			seeded, err := db.SeedDefaultShifts(gormDB)
			if err != nil {
				return err
			}
			app.logger.Info("migration finished", zap.Int("seeded_shifts", seeded))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "Do not insert the default Day and Night shifts")
	return cmd
}
