package service

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
)

func TestPeakWindows(t *testing.T) {
	s := utcLoadSettings()
	for hour, want := range map[int]bool{
		5: false, 6: true, 9: true, 10: false,
		16: false, 17: true, 21: true, 22: false, 0: false,
	} {
		assert.Equal(t, want, s.IsPeak(at(hour, 30)), "hour %d", hour)
	}

	wrap := PeakWindow{StartHour: 22, EndHour: 2}
	assert.True(t, wrap.Contains(23))
	assert.True(t, wrap.Contains(1))
	assert.False(t, wrap.Contains(2))
}

func TestLoadTickRanges(t *testing.T) {
	clk := clock.NewManual(at(0, 0))
	sim := NewLoadSimulator(clk, NewRandSource(7), utcLoadSettings(), nil)

	for i := 0; i < 500; i++ {
		clk.Advance(7 * time.Minute)
		d := sim.Tick()
		assert.GreaterOrEqual(t, d.TransformerLoad, 0.0)
		assert.LessOrEqual(t, d.TransformerLoad, 100.0)
		assert.GreaterOrEqual(t, d.CurrentUsage, 2.5)
		assert.LessOrEqual(t, d.CurrentUsage, 4.5)
		assert.GreaterOrEqual(t, d.SolarGeneration, 1.0)
		assert.LessOrEqual(t, d.SolarGeneration, 2.5)
		assert.InDelta(t, math.Max(0, d.CurrentUsage-d.SolarGeneration), d.NetUsage, 1e-9)
		assert.Contains(t, []float64{2.5, 3.5}, d.IncentiveRate)
		assert.Equal(t, utcLoadSettings().IsPeak(clk.Now()), d.IsPeakTime)
	}
}

func TestLoadIncentiveThresholdIsStrict(t *testing.T) {
	clk := clock.NewManual(at(7, 0))

	// variation 0.5 -> 0, surge 0 -> 0: load exactly the peak base of 70
	sim := NewLoadSimulator(clk, &seqRand{vals: []float64{0.5, 0, 0.5, 0.5}}, utcLoadSettings(), nil)
	d := sim.Tick()
	assert.True(t, d.IsPeakTime)
	assert.Equal(t, 70.0, d.TransformerLoad)
	assert.Equal(t, 2.5, d.IncentiveRate)

	sim = NewLoadSimulator(clk, &seqRand{vals: []float64{0.5, 0.01, 0.5, 0.5}}, utcLoadSettings(), nil)
	d = sim.Tick()
	assert.Greater(t, d.TransformerLoad, 70.0)
	assert.Equal(t, 3.5, d.IncentiveRate)
}

func TestLoadOffPeakBase(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, &seqRand{vals: []float64{0.5, 0, 0, 0}}, utcLoadSettings(), nil)

	d := sim.Tick()
	assert.False(t, d.IsPeakTime)
	assert.Equal(t, 40.0, d.TransformerLoad)
	assert.Equal(t, 2.5, d.CurrentUsage)
	assert.Equal(t, 1.0, d.SolarGeneration)
	assert.InDelta(t, 1.5, d.NetUsage, 1e-9)
}

func TestLoadSubscribeDeliversSnapshotSynchronously(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)
	defer sim.Close()

	var got []domain.EnergyData
	unsubscribe := sim.Subscribe(func(d domain.EnergyData) { got = append(got, d) })
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, 45.0, got[0].TransformerLoad)
	assert.Equal(t, sim.Current(), got[0])
}

func TestLoadTickerFollowsSubscribers(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)
	defer sim.Close()

	assert.False(t, sim.Running())
	assert.Equal(t, 0, clk.ActiveTickers())

	first := sim.Subscribe(func(domain.EnergyData) {})
	second := sim.Subscribe(func(domain.EnergyData) {})
	assert.True(t, sim.Running())
	assert.Equal(t, 1, clk.ActiveTickers())
	assert.Equal(t, 2, sim.Subscribers())

	first()
	first()
	assert.True(t, sim.Running())
	assert.Equal(t, 1, sim.Subscribers())

	second()
	assert.False(t, sim.Running())
	assert.Equal(t, 0, clk.ActiveTickers())

	var mu sync.Mutex
	calls := 0
	third := sim.Subscribe(func(domain.EnergyData) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	assert.True(t, sim.Running())
	clk.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)

	third()
	assert.False(t, sim.Running())

	// nothing arrives within two intervals of the last unsubscribe
	clk.Advance(10 * time.Second)
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls != 2
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestLoadTicksOnClock(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)
	defer sim.Close()

	var mu sync.Mutex
	count := 0
	unsubscribe := sim.Subscribe(func(domain.EnergyData) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer unsubscribe()

	clk.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, time.Second, 5*time.Millisecond)
}

func TestLoadListenerPanicIsIsolated(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)
	defer sim.Close()

	calls := 0
	stopA := sim.Subscribe(func(domain.EnergyData) { panic("boom") })
	stopB := sim.Subscribe(func(domain.EnergyData) { calls++ })
	defer stopA()
	defer stopB()

	assert.NotPanics(t, func() { sim.Tick() })
	assert.Equal(t, 2, calls)
}

func TestLoadUnsubscribeDuringNotification(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)
	defer sim.Close()

	var stop func()
	selfCalls, otherCalls := 0, 0
	stop = sim.Subscribe(func(domain.EnergyData) {
		selfCalls++
		if stop != nil {
			stop()
		}
	})
	stopOther := sim.Subscribe(func(domain.EnergyData) { otherCalls++ })
	defer stopOther()

	sim.Tick()
	sim.Tick()
	assert.Equal(t, 2, selfCalls)
	assert.Equal(t, 3, otherCalls)
	assert.Equal(t, 1, sim.Subscribers())
}

func TestLoadCloseStopsTicker(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)

	stop := sim.Subscribe(func(domain.EnergyData) {})
	sim.Close()
	assert.False(t, sim.Running())
	assert.Equal(t, 0, clk.ActiveTickers())

	got := 0
	later := sim.Subscribe(func(domain.EnergyData) { got++ })
	assert.Equal(t, 1, got)
	assert.False(t, sim.Running())
	later()
	stop()
}

func TestLoadInstrumentation(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	sim := NewLoadSimulator(clk, NewRandSource(1), utcLoadSettings(), nil)
	inst := newRecordingInstruments()
	sim.Instrument(inst)

	stop := sim.Subscribe(func(domain.EnergyData) {})
	sim.Tick()
	assert.Equal(t, 1, inst.ticks["load"])
	assert.Equal(t, 1, inst.subscribers["energy"])
	stop()
	sim.Close()
	assert.Equal(t, 0, inst.subscribers["energy"])
}
