package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print today's attendance summary",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

// openStore connects without migrating; the api and migrate own the schema.
func openStore(ctx context.Context) (store.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return db, nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := attendance.NewDashboard(db, nil).Summary(cmd.Context())
	if err != nil {
		return err
	}
	printSummary(cmd, s)
	return nil
}

func printSummary(cmd *cobra.Command, s attendance.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Check-ins today:    %d\n", s.TotalToday)
	fmt.Fprintf(out, "Registered users:   %d\n", s.TotalUsers)
	fmt.Fprintf(out, "Average confidence: %.2f%%\n", s.AverageConfidence)
}
