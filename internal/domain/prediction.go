package domain

import "time"

// PredictionStatus is the lifecycle state of a Prediction. States only move
// forward: upcoming -> active -> completed.
type PredictionStatus string

const (
	StatusUpcoming  PredictionStatus = "upcoming"
	StatusActive    PredictionStatus = "active"
	StatusCompleted PredictionStatus = "completed"
)

// Outcome is drawn when a prediction completes
type Outcome string

const (
	OutcomePrevented Outcome = "prevented"
	OutcomePartial   Outcome = "partial"
	OutcomeOccurred  Outcome = "occurred"
)

// TimeRange is the forecast overload window, half-open [Start, End)
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within [Start, End)
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Prediction is a location-tagged overload forecast
type Prediction struct {
	ID                string           `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	TimeRange         TimeRange        `json:"timeRange"`
	Area              string           `json:"area"`
	City              string           `json:"city"`
	Probability       float64          `json:"probability"`
	Status            PredictionStatus `json:"status"`
	Outcome           Outcome          `json:"outcome,omitempty"`
	ParticipationRate float64          `json:"participationRate"`
	ActualLoad        float64          `json:"actualLoad,omitempty"`
}

// PredictionRecord is a completed prediction with its settlement. Timestamp is
// the settlement instant; IssuedAt keeps the creation time of the forecast.
type PredictionRecord struct {
	Prediction
	IssuedAt           time.Time `json:"issuedAt"`
	TotalParticipants  int       `json:"totalParticipants"`
	EnergySaved        float64   `json:"energySaved"`
	RewardsDistributed float64   `json:"rewardsDistributed"`
	AccuracyScore      float64   `json:"accuracyScore"`
}

// AccuracyData holds the rolling accuracy aggregates
type AccuracyData struct {
	Weekly             float64 `json:"weekly"`
	Monthly            float64 `json:"monthly"`
	OverloadsPrevented int     `json:"overloadsPrevented"`
}

// Area is a named location predictions are issued for
type Area struct {
	Area string `json:"area" yaml:"area"`
	City string `json:"city" yaml:"city"`
}
