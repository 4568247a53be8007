package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
)

const persistTimeout = 5 * time.Second

// GridService aggregates the simulators for the API and persists their
// output in the background
type GridService struct {
	load    *LoadSimulator
	engine  *PredictionEngine
	repo    DataRepository
	clock   clock.Clock
	log     *slog.Logger
	records *RecordTracker

	wgBg sync.WaitGroup // tracks background goroutines for graceful shutdown
}

// NewGridService creates a new grid service
func NewGridService(
	load *LoadSimulator,
	engine *PredictionEngine,
	repo DataRepository,
	clk clock.Clock,
	logger *slog.Logger,
) *GridService {
	return &GridService{
		load:    load,
		engine:  engine,
		repo:    repo,
		clock:   clk,
		log:     componentLogger(logger, "grid_service"),
		records: NewRecordTracker(),
	}
}

// WaitBackground blocks until all background save goroutines complete.
// Call during graceful shutdown to avoid dropped writes.
func (s *GridService) WaitBackground() {
	s.wgBg.Wait()
}

// Attach subscribes to both simulators and persists every energy tick and
// every newly settled prediction. The returned function detaches.
func (s *GridService) Attach() func() {
	stopEnergy := s.load.Subscribe(func(data domain.EnergyData) {
		sample := domain.EnergySample{EnergyData: data, Timestamp: s.clock.Now()}
		s.background(func(ctx context.Context) error {
			return s.repo.SaveEnergySample(ctx, sample)
		})
	})
	stopHistory := s.engine.SubscribeToHistory(func(history []domain.PredictionRecord) {
		for _, record := range s.records.Fresh(history) {
			s.background(func(ctx context.Context) error {
				return s.repo.SavePredictionRecord(ctx, record)
			})
		}
	})
	return func() {
		stopEnergy()
		stopHistory()
	}
}

func (s *GridService) background(save func(ctx context.Context) error) {
	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := save(ctx); err != nil {
			s.log.Error("failed to persist", slog.String("error", err.Error()))
		}
	}()
}

// Energy returns the current snapshot with its classification
func (s *GridService) Energy() domain.EnergyView {
	return ViewOf(s.load.Current())
}

// Overview gathers everything the home screen needs
func (s *GridService) Overview() domain.GridOverview {
	return domain.GridOverview{
		Energy:    s.Energy(),
		NextAlert: s.engine.NextAlert(),
		Accuracy:  s.engine.Accuracy(),
		Upcoming:  len(s.engine.Upcoming()),
		Timestamp: s.clock.Now(),
	}
}

// EnergyHistory returns the persisted samples of the last window
func (s *GridService) EnergyHistory(ctx context.Context, window time.Duration) ([]domain.EnergySample, error) {
	to := s.clock.Now()
	samples, err := s.repo.GetEnergyHistory(ctx, to.Add(-window), to)
	if err != nil {
		return nil, fmt.Errorf("grid: energy history: %w", err)
	}
	return samples, nil
}

// PredictionRecords returns persisted settlement records, newest first
func (s *GridService) PredictionRecords(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	records, err := s.repo.GetPredictionRecords(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("grid: prediction records: %w", err)
	}
	return records, nil
}

// Health reports repository connectivity
func (s *GridService) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}
