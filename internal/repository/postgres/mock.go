package postgres

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gridsmart/backend/internal/domain"
)

// mockSampleCap bounds the in-memory sample buffer (a day of 5s ticks)
const mockSampleCap = 17280

// MockRepository implements domain.DataRepository in memory for testing/demo
// mode. Samples are kept in a bounded buffer, oldest dropped first.
type MockRepository struct {
	mu      sync.RWMutex
	samples []domain.EnergySample
	records map[string]domain.PredictionRecord
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{records: make(map[string]domain.PredictionRecord)}
}

// SaveEnergySample keeps the sample in memory
func (r *MockRepository) SaveEnergySample(ctx context.Context, s domain.EnergySample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) >= mockSampleCap {
		r.samples = append(r.samples[:0], r.samples[1:]...)
	}
	r.samples = append(r.samples, s)
	return nil
}

// SavePredictionRecord keeps the record in memory; known ids are ignored
func (r *MockRepository) SavePredictionRecord(ctx context.Context, rec domain.PredictionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		r.records[rec.ID] = rec
	}
	return nil
}

// GetEnergyHistory returns stored samples within [from, to], newest first
func (r *MockRepository) GetEnergyHistory(ctx context.Context, from, to time.Time) ([]domain.EnergySample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.EnergySample
	for i := len(r.samples) - 1; i >= 0 && len(out) < maxHistoryRows; i-- {
		s := r.samples[i]
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetPredictionRecords returns up to limit records, newest first
func (r *MockRepository) GetPredictionRecords(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	r.mu.RLock()
	out := make([]domain.PredictionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}
