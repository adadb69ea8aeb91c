package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"faceattend/internal/config"
	"faceattend/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Applies every pending migration for the configured STORE_DRIVER. With
--down N the last N migrations are rolled back instead.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().Int("down", 0, "Roll back this many migrations")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	m, err := store.NewMigrator(cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if down := mustGetInt(cmd, "down"); down > 0 {
		err = m.Steps(-down)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Fprintln(cmd.OutOrStdout(), "Schema: empty")
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (dirty: %v)\n", version, dirty)
	}
	return nil
}
