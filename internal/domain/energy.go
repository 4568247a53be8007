package domain

import "time"

// EnergyData is one Load Simulator snapshot. It is recomputed wholesale on
// every tick.
type EnergyData struct {
	TransformerLoad float64 `json:"transformerLoad"` // percent, 0-100
	CurrentUsage    float64 `json:"currentUsage"`    // kWh
	SolarGeneration float64 `json:"solarGeneration"` // kWh
	NetUsage        float64 `json:"netUsage"`        // kWh, max(0, usage - solar)
	IncentiveRate   float64 `json:"incentiveRate"`   // currency per kWh
	IsPeakTime      bool    `json:"isPeakTime"`
}

// EnergySample is an EnergyData snapshot stamped with the tick time, the form
// in which ticks are persisted
type EnergySample struct {
	EnergyData
	Timestamp time.Time `json:"timestamp"`
}

// LoadStatus classifies a transformer load percentage
type LoadStatus string

const (
	LoadNormal   LoadStatus = "NORMAL"
	LoadMedium   LoadStatus = "MEDIUM"
	LoadHigh     LoadStatus = "HIGH"
	LoadCritical LoadStatus = "CRITICAL"
)

// Recommendation is the demand-response advice shown for a load level
type Recommendation struct {
	Action              string  `json:"action"`
	Urgency             string  `json:"urgency"`
	TargetReduction     string  `json:"targetReduction"`
	IncentiveMultiplier float64 `json:"incentiveMultiplier"`
	Message             string  `json:"message"`
	TimeWindow          string  `json:"timeWindow"`
}

// EnergyView wraps a snapshot with its derived classification
type EnergyView struct {
	EnergyData
	Status         LoadStatus     `json:"status"`
	Recommendation Recommendation `json:"recommendation"`
}

// GridOverview aggregates everything the home screen shows
type GridOverview struct {
	Energy    EnergyView   `json:"energy"`
	NextAlert *Prediction  `json:"nextAlert"`
	Accuracy  AccuracyData `json:"accuracy"`
	Upcoming  int          `json:"upcomingCount"`
	Timestamp time.Time    `json:"timestamp"`
}
