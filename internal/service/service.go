package service

import (
	"io"
	"log/slog"

	"github.com/gridsmart/backend/internal/domain"
)

// DataRepository is re-exported from domain for convenience
type DataRepository = domain.DataRepository

// Instruments receives simulator events for metrics. Implementations must be
// safe for concurrent use.
type Instruments interface {
	TickCompleted(simulator string)
	EnergyObserved(data domain.EnergyData)
	PredictionTransitioned(from, to domain.PredictionStatus)
	PredictionSettled(outcome domain.Outcome)
	SubscribersChanged(topic string, count int)
}

type nopInstruments struct{}

func (nopInstruments) TickCompleted(string)            {}
func (nopInstruments) EnergyObserved(domain.EnergyData) {}
func (nopInstruments) PredictionSettled(domain.Outcome) {}
func (nopInstruments) SubscribersChanged(string, int)   {}

func (nopInstruments) PredictionTransitioned(from, to domain.PredictionStatus) {}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger.With(slog.String("component", component))
}
