package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/internal/service"
)

var (
	runTicks int
	runStep  time.Duration
	runStart string
	runQuiet bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Advance the simulators over a simulated period",
	Long: `Steps a simulated clock, ticking the load simulator on every step and the
prediction engine whenever its interval has elapsed, then prints a summary.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runTicks, "ticks", 288, "number of load ticks")
	runCmd.Flags().DurationVar(&runStep, "step", 5*time.Minute, "simulated time per tick")
	runCmd.Flags().StringVar(&runStart, "start", "", "start time, RFC 3339 (default is now)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "print the summary only")
	rootCmd.AddCommand(runCmd)
}

type runSummary struct {
	ticks      int
	peakTicks  int
	minLoad    float64
	maxLoad    float64
	sumLoad    float64
	netUsage   float64
	byStatus   map[domain.LoadStatus]int
	byOutcome  map[domain.Outcome]int
	settled    int
	persisted  int
	energySave float64
}

func runRun(cmd *cobra.Command, args []string) error {
	if runTicks < 1 || runStep <= 0 {
		return fmt.Errorf("--ticks and --step must be positive")
	}

	start := time.Now()
	if runStart != "" {
		t, err := time.Parse(time.RFC3339, runStart)
		if err != nil {
			return fmt.Errorf("parsing --start: %w", err)
		}
		start = t
	}

	tunables, err := loadTunables()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	var repo service.DataRepository
	if db != nil {
		defer db.Close()
		repo = db
	}

	clk := clock.NewManual(start)
	rng := newRand()
	load := service.NewLoadSimulator(clk, rng, tunables.LoadSettings(), nil)
	predSettings := tunables.PredictionSettings()
	engine := service.NewPredictionEngine(clk, rng, predSettings, nil)

	records := service.NewRecordTracker()
	records.Fresh(engine.History())

	ctx := context.Background()
	sum := runSummary{
		minLoad:   math.Inf(1),
		maxLoad:   math.Inf(-1),
		byStatus:  map[domain.LoadStatus]int{},
		byOutcome: map[domain.Outcome]int{},
	}

	active := map[string]bool{}

	// the engine ticks on its own interval, independent of --step
	nextEngineTick := start.Add(predSettings.Interval)
	for i := 0; i < runTicks; i++ {
		clk.Advance(runStep)
		now := clk.Now()

		data := load.Tick()
		sum.observe(data)
		if !runQuiet {
			fmt.Printf("%s  load %5.1f%%  %-8s  net %4.2f kWh  rate %.1f%s\n",
				now.Format(time.DateTime), data.TransformerLoad, service.ClassifyLoad(data.TransformerLoad),
				data.NetUsage, data.IncentiveRate, peakMark(data.IsPeakTime))
		}
		if repo != nil {
			sample := domain.EnergySample{EnergyData: data, Timestamp: now}
			if err := repo.SaveEnergySample(ctx, sample); err != nil {
				return fmt.Errorf("saving sample: %w", err)
			}
		}

		for !nextEngineTick.After(now) {
			engine.Tick()
			nextEngineTick = nextEngineTick.Add(predSettings.Interval)
		}
		for _, p := range engine.Upcoming() {
			if p.Status == domain.StatusActive && !active[p.ID] {
				active[p.ID] = true
				if !runQuiet {
					fmt.Printf("%s  %s active: %s, %s (p=%.0f%%)\n", now.Format(time.DateTime), p.ID, p.Area, p.City, p.Probability)
				}
			}
		}

		for _, rec := range records.Fresh(engine.History()) {
			sum.settled++
			sum.byOutcome[rec.Outcome]++
			sum.energySave += rec.EnergySaved
			if !runQuiet {
				fmt.Printf("%s  %s completed: %s, participation %.0f%%, %.1f kWh saved\n",
					now.Format(time.DateTime), rec.ID, rec.Outcome, rec.ParticipationRate, rec.EnergySaved)
			}
			if repo == nil {
				continue
			}
			if err := repo.SavePredictionRecord(ctx, rec); err != nil {
				return fmt.Errorf("saving record: %w", err)
			}
			sum.persisted++
		}
	}

	sum.print(start, clk.Now(), engine.Accuracy(), len(engine.Upcoming()))
	return nil
}

func peakMark(peak bool) string {
	if peak {
		return "  [peak]"
	}
	return ""
}

func (s *runSummary) observe(d domain.EnergyData) {
	s.ticks++
	if d.IsPeakTime {
		s.peakTicks++
	}
	s.minLoad = math.Min(s.minLoad, d.TransformerLoad)
	s.maxLoad = math.Max(s.maxLoad, d.TransformerLoad)
	s.sumLoad += d.TransformerLoad
	s.netUsage += d.NetUsage
	s.byStatus[service.ClassifyLoad(d.TransformerLoad)]++
}

func (s *runSummary) print(from, to time.Time, acc domain.AccuracyData, upcoming int) {
	fmt.Printf("\nSimulated %s (%s to %s)\n",
		strings.TrimSpace(humanize.RelTime(from, to, "", "")),
		from.Format(time.DateTime), to.Format(time.DateTime))
	fmt.Println("----------------------------------------")
	fmt.Printf("%-22s %16s\n", "Load ticks", humanize.Comma(int64(s.ticks)))
	fmt.Printf("%-22s %16s\n", "Peak ticks", humanize.Comma(int64(s.peakTicks)))
	fmt.Printf("%-22s %15.1f%%\n", "Min load", s.minLoad)
	fmt.Printf("%-22s %15.1f%%\n", "Avg load", s.sumLoad/float64(s.ticks))
	fmt.Printf("%-22s %15.1f%%\n", "Max load", s.maxLoad)
	fmt.Printf("%-22s %12s kWh\n", "Net usage", humanize.FormatFloat("#,###.##", s.netUsage))
	for _, st := range []domain.LoadStatus{domain.LoadNormal, domain.LoadMedium, domain.LoadHigh, domain.LoadCritical} {
		fmt.Printf("  %-20s %16d\n", st, s.byStatus[st])
	}
	fmt.Println("----------------------------------------")
	fmt.Printf("%-22s %16d\n", "Predictions settled", s.settled)
	for _, o := range []domain.Outcome{domain.OutcomePrevented, domain.OutcomePartial, domain.OutcomeOccurred} {
		fmt.Printf("  %-20s %16d\n", o, s.byOutcome[o])
	}
	fmt.Printf("%-22s %12s kWh\n", "Energy saved", humanize.FormatFloat("#,###.##", s.energySave))
	fmt.Printf("%-22s %16d\n", "Still tracked", upcoming)
	fmt.Printf("%-22s %15.1f%%\n", "Weekly accuracy", acc.Weekly)
	fmt.Printf("%-22s %15.1f%%\n", "Monthly accuracy", acc.Monthly)
	fmt.Printf("%-22s %16d\n", "Overloads prevented", acc.OverloadsPrevented)
	if dbPath != "" {
		fmt.Printf("\nSaved %s samples and %d records to %s\n", humanize.Comma(int64(s.ticks)), s.persisted, dbPath)
	}
}
