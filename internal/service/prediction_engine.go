package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/pkg/utils"
)

var (
	// ErrInvalidPrediction is returned by Track for malformed predictions
	ErrInvalidPrediction = errors.New("invalid prediction")
	// ErrDuplicatePrediction is returned by Track when the id is already tracked
	ErrDuplicatePrediction = errors.New("prediction already tracked")
)

const (
	participationStartMin = 20.0
	participationStartMax = 30.0
	participationStep     = 5.0 // ratchet by U[0, 5) per tick

	accuracyNudgeProbability  = 0.3
	weeklyNudgeMax            = 2.0
	monthlyNudgeMax           = 1.5
	preventedBumpProbability  = 0.05
	synthesisMinHoursAhead    = 3
	synthesisHoursAheadSpread = 45
	synthesisMinProbability   = 65
	synthesisProbabilitySpan  = 30
)

// OutcomeWeights are the relative chances of each outcome at completion
type OutcomeWeights struct {
	Prevented float64
	Partial   float64
	Occurred  float64
}

// DefaultOutcomeWeights is the 60/20/20 split
func DefaultOutcomeWeights() OutcomeWeights {
	return OutcomeWeights{Prevented: 0.6, Partial: 0.2, Occurred: 0.2}
}

// seededHistoryWeights reproduce the skew of the bundled demo history
var seededHistoryWeights = OutcomeWeights{Prevented: 0.7, Partial: 0.15, Occurred: 0.15}

func (w OutcomeWeights) draw(u float64) domain.Outcome {
	total := w.Prevented + w.Partial + w.Occurred
	if total <= 0 || w.Prevented < 0 || w.Partial < 0 || w.Occurred < 0 {
		w = DefaultOutcomeWeights()
		total = 1
	}
	x := u * total
	switch {
	case x < w.Prevented:
		return domain.OutcomePrevented
	case x < w.Prevented+w.Partial:
		return domain.OutcomePartial
	default:
		return domain.OutcomeOccurred
	}
}

// DefaultAreas is the fixed list new predictions are drawn from
func DefaultAreas() []domain.Area {
	return []domain.Area{
		{Area: "Rondebosch", City: "Cape Town"},
		{Area: "Sandton", City: "Johannesburg"},
		{Area: "Sea Point", City: "Cape Town"},
		{Area: "Claremont", City: "Cape Town"},
		{Area: "Camps Bay", City: "Cape Town"},
		{Area: "Greenpoint", City: "Cape Town"},
		{Area: "Observatory", City: "Cape Town"},
		{Area: "Newlands", City: "Cape Town"},
	}
}

// PredictionSettings tunes the Prediction Engine
type PredictionSettings struct {
	Interval             time.Duration
	Areas                []domain.Area
	Weights              OutcomeWeights
	AlertLead            time.Duration
	MaxTracked           int
	SynthesisProbability float64
	ParticipationCeiling float64
	HistoryLimit         int
	Location             *time.Location
	// Seed loads the demo working set and history at construction
	Seed bool
}

// DefaultPredictionSettings returns the reference behaviour
func DefaultPredictionSettings() PredictionSettings {
	return PredictionSettings{
		Interval:             30 * time.Second,
		Areas:                DefaultAreas(),
		Weights:              DefaultOutcomeWeights(),
		AlertLead:            2 * time.Hour,
		MaxTracked:           5,
		SynthesisProbability: 0.05,
		ParticipationCeiling: 90,
		HistoryLimit:         50,
		Location:             time.Local,
		Seed:                 true,
	}
}

func (s PredictionSettings) withDefaults() PredictionSettings {
	d := DefaultPredictionSettings()
	if s.Interval <= 0 {
		s.Interval = d.Interval
	}
	if len(s.Areas) == 0 {
		s.Areas = d.Areas
	}
	if s.AlertLead <= 0 {
		s.AlertLead = d.AlertLead
	}
	if s.MaxTracked <= 0 {
		s.MaxTracked = d.MaxTracked
	}
	if s.ParticipationCeiling <= 0 || s.ParticipationCeiling > 100 {
		s.ParticipationCeiling = d.ParticipationCeiling
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = d.HistoryLimit
	}
	if s.Location == nil {
		s.Location = d.Location
	}
	return s
}

// PredictionEngine maintains the overload forecasts, moves them through
// upcoming -> active -> completed, and keeps accuracy aggregates and a
// bounded most-recent-first history. It is safe for concurrent use.
type PredictionEngine struct {
	clock       clock.Clock
	rng         RandSource
	settings    PredictionSettings
	log         *slog.Logger
	instruments Instruments
	newID       func() string

	upcomingHub *hub[[]domain.Prediction]
	historyHub  *hub[[]domain.PredictionRecord]
	accuracyHub *hub[domain.AccuracyData]
	alertHub    *hub[*domain.Prediction]

	mu       sync.Mutex
	tracked  []domain.Prediction
	history  []domain.PredictionRecord
	settled  map[string]struct{} // completed ids stay terminal
	accuracy domain.AccuracyData
	ticker   clock.Ticker
	quit     chan struct{}
	done     chan struct{}
}

// NewPredictionEngine builds an engine; it does not tick until Start
func NewPredictionEngine(clk clock.Clock, rng RandSource, settings PredictionSettings, logger *slog.Logger) *PredictionEngine {
	settings = settings.withDefaults()
	log := componentLogger(logger, "prediction_engine")
	e := &PredictionEngine{
		clock:       clk,
		rng:         rng,
		settings:    settings,
		log:         log,
		instruments: nopInstruments{},
		newID:       func() string { return "pred-" + uuid.NewString() },
		upcomingHub: newHub[[]domain.Prediction]("upcoming", log),
		historyHub:  newHub[[]domain.PredictionRecord]("history", log),
		accuracyHub: newHub[domain.AccuracyData]("accuracy", log),
		alertHub:    newHub[*domain.Prediction]("alerts", log),
		accuracy:    domain.AccuracyData{Weekly: 92, Monthly: 88, OverloadsPrevented: 47},
		settled:     make(map[string]struct{}),
	}
	if settings.Seed {
		e.seed(clk.Now())
	}
	return e
}

// Instrument routes engine events to i
func (e *PredictionEngine) Instrument(i Instruments) {
	if i == nil {
		i = nopInstruments{}
	}
	e.instruments = i
}

// Start begins ticking every Interval until ctx is done or Stop is called.
// Calling Start on a running engine is a no-op.
func (e *PredictionEngine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ticker != nil {
		return
	}
	t := e.clock.NewTicker(e.settings.Interval)
	quit := make(chan struct{})
	done := make(chan struct{})
	e.ticker, e.quit, e.done = t, quit, done
	e.log.Info("prediction engine started", slog.Duration("interval", e.settings.Interval))

	go func() {
		defer close(done)
		for {
			select {
			case <-t.C():
				e.Tick()
			case <-quit:
				return
			case <-ctx.Done():
				e.Stop()
				return
			}
		}
	}()
}

// Stop halts the tick loop. It is safe to call more than once.
func (e *PredictionEngine) Stop() {
	e.mu.Lock()
	if e.ticker == nil {
		e.mu.Unlock()
		return
	}
	e.ticker.Stop()
	close(e.quit)
	e.ticker, e.quit = nil, nil
	e.mu.Unlock()
	e.log.Info("prediction engine stopped")
}

// Close stops the loop and waits for an in-flight tick to finish
func (e *PredictionEngine) Close() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	e.Stop()
	if done != nil {
		<-done
	}
}

// Running reports whether the tick loop is active
func (e *PredictionEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker != nil
}

// Tick advances every tracked prediction, occasionally synthesizes a new
// one, nudges the accuracy metrics and notifies subscribers.
func (e *PredictionEngine) Tick() {
	e.mu.Lock()
	now := e.clock.Now()
	settled := e.advanceLocked(now)
	e.synthesizeLocked(now)
	e.sortLocked()
	e.nudgeAccuracyLocked()

	upcoming := clonePredictions(e.tracked)
	accuracy := e.accuracy
	alert := e.nextAlertLocked(now)
	var history []domain.PredictionRecord
	var historyVersion uint64
	if len(settled) > 0 {
		history = cloneRecords(e.history)
		historyVersion = e.historyHub.stamp()
	}
	upcomingVersion := e.upcomingHub.stamp()
	accuracyVersion := e.accuracyHub.stamp()
	alertVersion := e.alertHub.stamp()
	e.mu.Unlock()

	e.instruments.TickCompleted("predictions")
	if history != nil {
		e.historyHub.publish(history, historyVersion, cloneRecords)
	}
	e.upcomingHub.publish(upcoming, upcomingVersion, clonePredictions)
	e.accuracyHub.publish(accuracy, accuracyVersion, nil)
	e.alertHub.publish(alert, alertVersion, clonePredictionPtr)
}

// Track adds an upcoming prediction to the working set. Missing timestamp
// and status are filled in.
func (e *PredictionEngine) Track(p domain.Prediction) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPrediction)
	}
	if !p.TimeRange.End.After(p.TimeRange.Start) {
		return fmt.Errorf("%w: window end must be after start", ErrInvalidPrediction)
	}
	if p.Status == "" {
		p.Status = domain.StatusUpcoming
	}
	if p.Status != domain.StatusUpcoming {
		return fmt.Errorf("%w: new predictions must be %s, got %s", ErrInvalidPrediction, domain.StatusUpcoming, p.Status)
	}
	if p.Probability < 0 || p.Probability > 100 {
		return fmt.Errorf("%w: probability %.1f out of range", ErrInvalidPrediction, p.Probability)
	}

	e.mu.Lock()
	if _, done := e.settled[p.ID]; done {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s already completed", ErrDuplicatePrediction, p.ID)
	}
	for _, cur := range e.tracked {
		if cur.ID == p.ID {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicatePrediction, p.ID)
		}
	}
	now := e.clock.Now()
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
	p.Outcome, p.ActualLoad, p.ParticipationRate = "", 0, 0
	e.tracked = append(e.tracked, p)
	e.sortLocked()
	upcoming := clonePredictions(e.tracked)
	alert := e.nextAlertLocked(now)
	upcomingVersion := e.upcomingHub.stamp()
	alertVersion := e.alertHub.stamp()
	e.mu.Unlock()

	e.upcomingHub.publish(upcoming, upcomingVersion, clonePredictions)
	e.alertHub.publish(alert, alertVersion, clonePredictionPtr)
	return nil
}

// Upcoming returns the upcoming and active predictions, nearest first
func (e *PredictionEngine) Upcoming() []domain.Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clonePredictions(e.tracked)
}

// History returns settled predictions, most recent first
func (e *PredictionEngine) History() []domain.PredictionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneRecords(e.history)
}

// Accuracy returns the current accuracy aggregates
func (e *PredictionEngine) Accuracy() domain.AccuracyData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accuracy
}

// NextAlert returns the first tracked prediction that is active or starts
// within the alert lead time, or nil
func (e *PredictionEngine) NextAlert() *domain.Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextAlertLocked(e.clock.Now())
}

// SubscribeToUpcoming delivers the working set now and after every change
func (e *PredictionEngine) SubscribeToUpcoming(fn func([]domain.Prediction)) func() {
	return subscribe(e, e.upcomingHub, fn, func() []domain.Prediction {
		return clonePredictions(e.tracked)
	})
}

// SubscribeToHistory delivers the history now and whenever a record is added
func (e *PredictionEngine) SubscribeToHistory(fn func([]domain.PredictionRecord)) func() {
	return subscribe(e, e.historyHub, fn, func() []domain.PredictionRecord {
		return cloneRecords(e.history)
	})
}

// SubscribeToAccuracy delivers the accuracy aggregates now and on every tick
func (e *PredictionEngine) SubscribeToAccuracy(fn func(domain.AccuracyData)) func() {
	return subscribe(e, e.accuracyHub, fn, func() domain.AccuracyData {
		return e.accuracy
	})
}

// SubscribeToAlerts delivers the next alert (possibly nil) now and on every tick
func (e *PredictionEngine) SubscribeToAlerts(fn func(*domain.Prediction)) func() {
	return subscribe(e, e.alertHub, fn, func() *domain.Prediction {
		return e.nextAlertLocked(e.clock.Now())
	})
}

func subscribe[T any](e *PredictionEngine, h *hub[T], fn func(T), current func() T) func() {
	e.mu.Lock()
	l, count := h.join(fn)
	snapshot := current()
	e.mu.Unlock()

	e.instruments.SubscribersChanged(h.name, count)
	h.welcome(l, snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			if removed, remaining := h.remove(l.id); removed {
				e.instruments.SubscribersChanged(h.name, remaining)
			}
		})
	}
}

// advanceLocked applies the state machine and returns the records settled
// during this pass
func (e *PredictionEngine) advanceLocked(now time.Time) []domain.PredictionRecord {
	var settled []domain.PredictionRecord
	kept := e.tracked[:0]
	for _, p := range e.tracked {
		activated := false
		if p.Status == domain.StatusUpcoming && !now.Before(p.TimeRange.Start) {
			p.Status = domain.StatusActive
			p.ParticipationRate = utils.Lerp(participationStartMin, participationStartMax, e.rng.Float64())
			activated = true
			e.instruments.PredictionTransitioned(domain.StatusUpcoming, domain.StatusActive)
			e.log.Info("prediction active", slog.String("id", p.ID), slog.String("area", p.Area))
		}

		if p.Status == domain.StatusActive && !now.Before(p.TimeRange.End) {
			record := settle(p, e.settings.Weights, now, e.rng)
			e.settled[p.ID] = struct{}{}
			e.history = append([]domain.PredictionRecord{record}, e.history...)
			if len(e.history) > e.settings.HistoryLimit {
				e.history = e.history[:e.settings.HistoryLimit]
			}
			settled = append(settled, record)
			e.instruments.PredictionTransitioned(domain.StatusActive, domain.StatusCompleted)
			e.instruments.PredictionSettled(record.Outcome)
			e.log.Info("prediction completed",
				slog.String("id", p.ID),
				slog.String("area", p.Area),
				slog.String("outcome", string(record.Outcome)))
			continue
		}

		if p.Status == domain.StatusActive && !activated && p.ParticipationRate < e.settings.ParticipationCeiling {
			step := utils.Lerp(0, participationStep, e.rng.Float64())
			p.ParticipationRate = math.Min(e.settings.ParticipationCeiling, p.ParticipationRate+step)
		}
		kept = append(kept, p)
	}
	// drop references held beyond the new length
	for i := len(kept); i < len(e.tracked); i++ {
		e.tracked[i] = domain.Prediction{}
	}
	e.tracked = kept
	return settled
}

func (e *PredictionEngine) synthesizeLocked(now time.Time) {
	if e.rng.Float64() >= e.settings.SynthesisProbability || len(e.tracked) >= e.settings.MaxTracked {
		return
	}
	area := e.settings.Areas[intn(e.rng, len(e.settings.Areas))]
	hoursAhead := synthesisMinHoursAhead + intn(e.rng, synthesisHoursAheadSpread)
	start := now.Add(time.Duration(hoursAhead) * time.Hour)
	duration := time.Duration((1 + e.rng.Float64()) * float64(time.Hour))

	p := domain.Prediction{
		ID:          e.newID(),
		Timestamp:   now,
		TimeRange:   domain.TimeRange{Start: start, End: start.Add(duration)},
		Area:        area.Area,
		City:        area.City,
		Probability: float64(synthesisMinProbability + intn(e.rng, synthesisProbabilitySpan)),
		Status:      domain.StatusUpcoming,
	}
	e.tracked = append(e.tracked, p)
	e.log.Info("prediction issued",
		slog.String("id", p.ID),
		slog.String("area", p.Area),
		slog.Time("start", start),
		slog.Float64("probability", p.Probability))
}

func (e *PredictionEngine) sortLocked() {
	sort.SliceStable(e.tracked, func(i, j int) bool {
		return e.tracked[i].TimeRange.Start.Before(e.tracked[j].TimeRange.Start)
	})
}

func (e *PredictionEngine) nudgeAccuracyLocked() {
	if e.rng.Float64() < accuracyNudgeProbability {
		e.accuracy.Weekly = math.Min(100, e.accuracy.Weekly+e.rng.Float64()*weeklyNudgeMax)
		e.accuracy.Monthly = math.Min(100, e.accuracy.Monthly+e.rng.Float64()*monthlyNudgeMax)
	}
	if e.rng.Float64() < preventedBumpProbability {
		e.accuracy.OverloadsPrevented++
	}
}

func (e *PredictionEngine) nextAlertLocked(now time.Time) *domain.Prediction {
	for _, p := range e.tracked {
		if p.Status == domain.StatusActive || p.TimeRange.Start.Sub(now) <= e.settings.AlertLead {
			alert := p
			return &alert
		}
	}
	return nil
}

// settle completes p: draws the outcome and fills the settlement figures
func settle(p domain.Prediction, weights OutcomeWeights, now time.Time, rng RandSource) domain.PredictionRecord {
	outcome := weights.draw(rng.Float64())
	issuedAt := p.Timestamp

	p.Status = domain.StatusCompleted
	p.Outcome = outcome
	p.ActualLoad = actualLoadFor(outcome)
	p.Timestamp = now

	record := domain.PredictionRecord{
		Prediction:        p,
		IssuedAt:          issuedAt,
		TotalParticipants: 200 + intn(rng, 300),
	}
	switch outcome {
	case domain.OutcomePrevented:
		record.EnergySaved = utils.Lerp(150, 250, rng.Float64())
		record.RewardsDistributed = utils.Lerp(2500, 4000, rng.Float64())
	case domain.OutcomePartial:
		record.EnergySaved = utils.Lerp(50, 100, rng.Float64())
		record.RewardsDistributed = utils.Lerp(1000, 1500, rng.Float64())
	}
	record.AccuracyScore = float64(85 + intn(rng, 10))
	return record
}

func actualLoadFor(o domain.Outcome) float64 {
	switch o {
	case domain.OutcomePrevented:
		return 75
	case domain.OutcomePartial:
		return 85
	default:
		return 95
	}
}

func clonePredictions(in []domain.Prediction) []domain.Prediction {
	out := make([]domain.Prediction, len(in))
	copy(out, in)
	return out
}

func cloneRecords(in []domain.PredictionRecord) []domain.PredictionRecord {
	out := make([]domain.PredictionRecord, len(in))
	copy(out, in)
	return out
}

func clonePredictionPtr(p *domain.Prediction) *domain.Prediction {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
