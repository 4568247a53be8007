package service

import (
	"sync"
	"time"

	"github.com/gridsmart/backend/internal/domain"
)

// fixedRand returns the same value forever
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

// seqRand replays vals, then repeats fallback
type seqRand struct {
	mu       sync.Mutex
	vals     []float64
	fallback float64
}

func (s *seqRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.vals) == 0 {
		return s.fallback
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v
}

// at returns 2024-07-10 at the given hour, UTC
func at(hour, minute int) time.Time {
	return time.Date(2024, 7, 10, hour, minute, 0, 0, time.UTC)
}

func utcLoadSettings() LoadSettings {
	s := DefaultLoadSettings()
	s.Location = time.UTC
	return s
}

func unseededPredictionSettings() PredictionSettings {
	s := DefaultPredictionSettings()
	s.Location = time.UTC
	s.Seed = false
	return s
}

type recordingInstruments struct {
	mu          sync.Mutex
	ticks       map[string]int
	transitions []string
	outcomes    []domain.Outcome
	subscribers map[string]int
}

func newRecordingInstruments() *recordingInstruments {
	return &recordingInstruments{ticks: map[string]int{}, subscribers: map[string]int{}}
}

func (r *recordingInstruments) TickCompleted(sim string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks[sim]++
}

func (r *recordingInstruments) EnergyObserved(domain.EnergyData) {}

func (r *recordingInstruments) PredictionTransitioned(from, to domain.PredictionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}

func (r *recordingInstruments) PredictionSettled(o domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingInstruments) SubscribersChanged(topic string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[topic] = n
}
