package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var recordsLimit int

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List persisted prediction records",
	Long:  `Displays settled prediction records stored in the SQLite database, newest first.`,
	RunE:  runRecords,
}

func init() {
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 20, "maximum records to show")
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	if dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	records, err := db.GetPredictionRecords(context.Background(), recordsLimit)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No records found")
		return nil
	}

	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("%-20s  %-18s  %-10s  %6s  %8s  %s\n", "Settled", "Area", "Outcome", "Part.", "Saved", "ID")
	fmt.Println("------------------------------------------------------------------------")

	var saved, rewards float64
	for _, r := range records {
		fmt.Printf("%-20s  %-18s  %-10s  %5.0f%%  %8.1f  %s\n",
			r.Timestamp.Local().Format(time.DateTime), r.Area, r.Outcome, r.ParticipationRate, r.EnergySaved, r.ID)
		saved += r.EnergySaved
		rewards += r.RewardsDistributed
	}

	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("Total: %s kWh saved, %s rewards distributed (%d records)\n",
		humanize.FormatFloat("#,###.#", saved), humanize.FormatFloat("#,###.##", rewards), len(records))
	return nil
}
