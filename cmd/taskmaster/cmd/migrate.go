package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply run history database migrations",
	Long:  `Create or upgrade the PostgreSQL tables used for run history. Safe to run repeatedly.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("migrate requires --database-url")
		}

		if err := runMigrations(cmd.Context(), cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}

		log.Info("Migrations applied")
		cmd.Printf("%s✓%s Run history schema is up to date\n", colorGreen, colorReset)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
