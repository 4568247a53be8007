package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
)

func newTestHub() *hub[int] {
	return newHub[int]("test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubSnapshotPrecedesPublish(t *testing.T) {
	h := newTestHub()

	var mu sync.Mutex
	var got []int
	l, count := h.join(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	assert.Equal(t, 1, count)

	// a publish racing the registration waits for the snapshot
	version := h.stamp()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.publish(2, version, nil)
	}()
	h.welcome(l, 1)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, got)
}

func TestHubSkipsValuesCoveredBySnapshot(t *testing.T) {
	h := newTestHub()

	stale := h.stamp()
	var got []int
	l, _ := h.join(func(v int) { got = append(got, v) })
	h.welcome(l, 1)

	h.publish(0, stale, nil)
	h.publish(2, h.stamp(), nil)
	assert.Equal(t, []int{1, 2}, got)
}

func TestLoadSubscribeInsideCallbackGetsSnapshotFirst(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)
	defer sim.Close()

	var inner []domain.EnergyData
	var stopInner func()
	stopOuter := sim.Subscribe(func(domain.EnergyData) {
		if stopInner == nil {
			stopInner = sim.Subscribe(func(d domain.EnergyData) { inner = append(inner, d) })
		}
	})
	defer stopOuter()
	require.NotNil(t, stopInner)
	defer stopInner()
	require.Len(t, inner, 1)

	first := sim.Tick()
	// the tick registered during delivery carries a newer value than the snapshot
	require.Len(t, inner, 2)
	assert.Equal(t, first, inner[1])
}

func TestEngineHistorySubscriberSeesSettlementAfterSnapshot(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	e := NewPredictionEngine(clk, fixedRand(0.5), unseededPredictionSettings(), nil)
	require.NoError(t, e.Track(domain.Prediction{ID: "p1", TimeRange: window(clk.Now(), 10*time.Minute, 20*time.Minute)}))

	tracker := NewRecordTracker()
	var fresh []domain.PredictionRecord
	stop := e.SubscribeToHistory(func(h []domain.PredictionRecord) {
		fresh = append(fresh, tracker.Fresh(h)...)
	})
	defer stop()

	clk.Advance(time.Hour)
	e.Tick()
	require.Len(t, fresh, 1)
	assert.Equal(t, "p1", fresh[0].ID)
}
