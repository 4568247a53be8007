package service

import (
	"sync"

	"github.com/gridsmart/backend/internal/domain"
)

// RecordTracker picks out history records not seen before. The first batch
// it is given only primes it, so records that existed at subscription time
// are never reported as new.
type RecordTracker struct {
	mu     sync.Mutex
	primed bool
	seen   map[string]struct{}
}

// NewRecordTracker returns an unprimed tracker
func NewRecordTracker() *RecordTracker {
	return &RecordTracker{seen: make(map[string]struct{})}
}

// Fresh returns the records in history that were not in any earlier batch,
// oldest first
func (t *RecordTracker) Fresh(history []domain.PredictionRecord) []domain.PredictionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []domain.PredictionRecord
	for i := len(history) - 1; i >= 0; i-- {
		id := history[i].ID
		if _, ok := t.seen[id]; ok {
			continue
		}
		t.seen[id] = struct{}{}
		if t.primed {
			fresh = append(fresh, history[i])
		}
	}
	t.primed = true
	return fresh
}
