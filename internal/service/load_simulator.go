package service

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/pkg/utils"
)

// Ranges of the uniform draws made on every tick
const (
	loadVariation = 10.0 // load += U[-10, 10)
	loadSurge     = 10.0 // load += U[0, 10)
	minUsageKWh   = 2.5
	maxUsageKWh   = 4.5
	minSolarKWh   = 1.0
	maxSolarKWh   = 2.5
)

// PeakWindow is a half-open hour range [StartHour, EndHour). A window with
// StartHour > EndHour wraps past midnight.
type PeakWindow struct {
	StartHour int
	EndHour   int
}

// Contains reports whether hour (0-23) is inside the window
func (w PeakWindow) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// LoadSettings tunes the Load Simulator
type LoadSettings struct {
	Interval    time.Duration
	PeakWindows []PeakWindow
	Location    *time.Location

	PeakBaseLoad    float64
	OffPeakBaseLoad float64

	// IncentiveRate is PeakIncentiveRate when load is strictly above
	// IncentiveThreshold, BaseIncentiveRate otherwise.
	IncentiveThreshold float64
	BaseIncentiveRate  float64
	PeakIncentiveRate  float64
}

// DefaultLoadSettings returns the reference behaviour: 5s ticks, peak hours
// 06-09 and 17-21 inclusive, two-tier incentive around 70%.
func DefaultLoadSettings() LoadSettings {
	return LoadSettings{
		Interval:           5 * time.Second,
		PeakWindows:        []PeakWindow{{StartHour: 6, EndHour: 10}, {StartHour: 17, EndHour: 22}},
		Location:           time.Local,
		PeakBaseLoad:       70,
		OffPeakBaseLoad:    40,
		IncentiveThreshold: 70,
		BaseIncentiveRate:  2.5,
		PeakIncentiveRate:  3.5,
	}
}

// IsPeak reports whether t falls in a peak window, evaluated in the
// configured location
func (s LoadSettings) IsPeak(t time.Time) bool {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	hour := t.In(loc).Hour()
	for _, w := range s.PeakWindows {
		if w.Contains(hour) {
			return true
		}
	}
	return false
}

// IncentiveRate applies the two-tier step function to a load value
func (s LoadSettings) IncentiveRate(load float64) float64 {
	if load > s.IncentiveThreshold {
		return s.PeakIncentiveRate
	}
	return s.BaseIncentiveRate
}

// LoadSimulator produces a stream of plausible transformer telemetry. The
// ticker only runs while someone is subscribed.
type LoadSimulator struct {
	clock       clock.Clock
	rng         RandSource
	settings    LoadSettings
	log         *slog.Logger
	instruments Instruments
	listeners   *hub[domain.EnergyData]

	mu      sync.Mutex
	current domain.EnergyData
	ticker  clock.Ticker
	quit    chan struct{}
	done    chan struct{}
	closed  bool
}

// NewLoadSimulator creates a load simulator. It is idle until the first
// Subscribe.
func NewLoadSimulator(clk clock.Clock, rng RandSource, settings LoadSettings, logger *slog.Logger) *LoadSimulator {
	if settings.Interval <= 0 {
		settings.Interval = DefaultLoadSettings().Interval
	}
	log := componentLogger(logger, "load_simulator")
	return &LoadSimulator{
		clock:       clk,
		rng:         rng,
		settings:    settings,
		log:         log,
		instruments: nopInstruments{},
		listeners:   newHub[domain.EnergyData]("energy", log),
		current: domain.EnergyData{
			TransformerLoad: 45,
			CurrentUsage:    3.2,
			SolarGeneration: 1.5,
			NetUsage:        1.7,
			IncentiveRate:   2.5,
			IsPeakTime:      false,
		},
	}
}

// Instrument routes simulator events to i
func (s *LoadSimulator) Instrument(i Instruments) {
	if i == nil {
		i = nopInstruments{}
	}
	s.instruments = i
}

// Settings returns the settings the simulator runs with
func (s *LoadSimulator) Settings() LoadSettings {
	return s.settings
}

// Current returns the latest snapshot without subscribing
func (s *LoadSimulator) Current() domain.EnergyData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribers reports how many listeners are registered
func (s *LoadSimulator) Subscribers() int {
	return s.listeners.len()
}

// Running reports whether the tick timer is active
func (s *LoadSimulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// Subscribe registers fn for every subsequent tick and calls it once,
// synchronously, with the current snapshot. That snapshot always reaches fn
// before any tick does. The first subscriber starts the timer; the returned
// function unsubscribes and may be called repeatedly.
func (s *LoadSimulator) Subscribe(fn func(domain.EnergyData)) func() {
	s.mu.Lock()
	l, count := s.listeners.join(fn)
	if s.ticker == nil && !s.closed {
		s.startLocked()
	}
	snapshot := s.current
	s.mu.Unlock()

	s.instruments.SubscribersChanged("energy", count)
	s.listeners.welcome(l, snapshot)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(l.id) })
	}
}

func (s *LoadSimulator) unsubscribe(id uint64) {
	removed, remaining := s.listeners.remove(id)
	if !removed {
		return
	}
	s.instruments.SubscribersChanged("energy", remaining)
	if remaining > 0 {
		return
	}

	s.mu.Lock()
	// a new subscriber may have raced in between remove and Lock
	if s.listeners.len() == 0 {
		s.stopLocked()
	}
	s.mu.Unlock()
}

// Tick runs one simulation step and notifies every subscriber
func (s *LoadSimulator) Tick() domain.EnergyData {
	s.mu.Lock()
	data := s.simulateLocked(s.clock.Now())
	s.current = data
	version := s.listeners.stamp()
	s.mu.Unlock()

	s.instruments.EnergyObserved(data)
	s.instruments.TickCompleted("load")
	s.listeners.publish(data, version, nil)
	return data
}

// Close stops the timer unconditionally. Later subscribers still receive
// the last snapshot but no further ticks.
func (s *LoadSimulator) Close() {
	s.mu.Lock()
	s.closed = true
	done := s.done
	s.stopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *LoadSimulator) simulateLocked(now time.Time) domain.EnergyData {
	isPeak := s.settings.IsPeak(now)
	base := s.settings.OffPeakBaseLoad
	if isPeak {
		base = s.settings.PeakBaseLoad
	}

	variation := utils.Lerp(-loadVariation, loadVariation, s.rng.Float64())
	surge := utils.Lerp(0, loadSurge, s.rng.Float64())
	load := utils.Clamp(base+variation+surge, 0, 100)

	usage := utils.Lerp(minUsageKWh, maxUsageKWh, s.rng.Float64())
	solar := math.Max(0, utils.Lerp(minSolarKWh, maxSolarKWh, s.rng.Float64()))

	return domain.EnergyData{
		TransformerLoad: load,
		CurrentUsage:    usage,
		SolarGeneration: solar,
		NetUsage:        math.Max(0, usage-solar),
		IncentiveRate:   s.settings.IncentiveRate(load),
		IsPeakTime:      isPeak,
	}
}

func (s *LoadSimulator) startLocked() {
	t := s.clock.NewTicker(s.settings.Interval)
	quit := make(chan struct{})
	done := make(chan struct{})
	s.ticker, s.quit, s.done = t, quit, done
	s.log.Debug("tick timer started", slog.Duration("interval", s.settings.Interval))
	go s.loop(t, quit, done)
}

func (s *LoadSimulator) stopLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.quit)
	s.ticker, s.quit = nil, nil
	s.log.Debug("tick timer stopped")
}

func (s *LoadSimulator) loop(t clock.Ticker, quit, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-t.C():
			select {
			case <-quit:
				return
			default:
			}
			s.Tick()
		case <-quit:
			return
		}
	}
}
