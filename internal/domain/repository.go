package domain

import (
	"context"
	"time"
)

// DataRepository defines the interface for data persistence
// This follows the Dependency Inversion Principle - domain defines the interface
type DataRepository interface {
	// SaveEnergySample persists one load simulator tick
	SaveEnergySample(ctx context.Context, sample EnergySample) error

	// SavePredictionRecord persists a settled prediction; saving the same id twice is a no-op
	SavePredictionRecord(ctx context.Context, record PredictionRecord) error

	// GetEnergyHistory retrieves samples within [from, to], newest first
	GetEnergyHistory(ctx context.Context, from, to time.Time) ([]EnergySample, error)

	// GetPredictionRecords retrieves up to limit records, most recently settled first
	GetPredictionRecords(ctx context.Context, limit int) ([]PredictionRecord, error)

	// Health checks database connectivity
	Health(ctx context.Context) error
}
