package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/service"
)

var predictionsDemo bool

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Show the initial prediction working set and history",
	RunE:  runPredictions,
}

func init() {
	predictionsCmd.Flags().BoolVar(&predictionsDemo, "demo", true, "load the demo working set and history")
	rootCmd.AddCommand(predictionsCmd)
}

func runPredictions(cmd *cobra.Command, args []string) error {
	tunables, err := loadTunables()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	now := time.Now()
	settings := tunables.PredictionSettings()
	settings.Seed = predictionsDemo
	engine := service.NewPredictionEngine(clock.NewManual(now), newRand(), settings, nil)

	upcoming := engine.Upcoming()
	fmt.Printf("\nUpcoming (%d):\n", len(upcoming))
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("%-16s  %-18s  %5s  %s\n", "ID", "Area", "Prob", "Starts")
	for _, p := range upcoming {
		fmt.Printf("%-16s  %-18s  %4.0f%%  %s\n", p.ID, p.Area, p.Probability, humanize.RelTime(p.TimeRange.Start, now, "ago", "from now"))
	}

	if alert := engine.NextAlert(); alert != nil {
		fmt.Printf("\nAlert: %s in %s at %s\n", alert.Area, alert.City, alert.TimeRange.Start.Format(time.Kitchen))
	}

	history := engine.History()
	fmt.Printf("\nHistory (%d):\n", len(history))
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("%-12s  %-18s  %-10s  %8s  %s\n", "ID", "Area", "Outcome", "Saved", "Settled")
	for _, r := range history {
		fmt.Printf("%-12s  %-18s  %-10s  %8.1f  %s\n", r.ID, r.Area, r.Outcome, r.EnergySaved, humanize.Time(r.Timestamp))
	}

	acc := engine.Accuracy()
	fmt.Printf("\nAccuracy: weekly %.1f%%, monthly %.1f%%, %d overloads prevented\n", acc.Weekly, acc.Monthly, acc.OverloadsPrevented)
	return nil
}
