package main

import (
	"fmt"

	"github.com/pagetrail/internal/db"
	applog "github.com/pagetrail/internal/logger"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed the super root user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close(db.DB)

			if err := db.EnsureUser(db.DB, cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
				return fmt.Errorf("failed to ensure super root user: %w", err)
			}

			applog.Get().Info("migration completed", "driver", cfg.DatabaseDriver)
			return nil
		},
	}
}
