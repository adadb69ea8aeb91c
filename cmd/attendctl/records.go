package main

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"faceattend/internal/attendance"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Export recent check-ins as CSV",
	Long:  `Writes the most recent attendance records, newest first, as CSV to stdout.`,
	Args:  cobra.NoArgs,
	RunE:  runRecords,
}

func init() {
	recordsCmd.Flags().Int("limit", attendance.DefaultListLimit, "Number of records to export")
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, _ []string) error {
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := attendance.NewDashboard(db, nil).Recent(cmd.Context(), mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	return writeRecordsCSV(cmd.OutOrStdout(), recs)
}

func writeRecordsCSV(w io.Writer, recs []attendance.Record) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"check_in_time", "name", "email", "confidence", "user_id", "record_id"})
	for _, r := range recs {
		_ = cw.Write([]string{
			r.CheckInTime.Local().Format(time.RFC3339),
			r.UserName,
			r.UserEmail,
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			r.UserID,
			r.ID,
		})
	}
	cw.Flush()
	return cw.Error()
}
