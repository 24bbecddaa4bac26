package main

import (
	"github.com/spf13/cobra"

	"github.com/susu3304/gastobot/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}

		database, err := db.New(cmd.Context(), cfg.DatabaseURL, cfg.Location())
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.RunMigrations(cmd.Context()); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
