package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/internal/service"
)

// Tunables holds the simulator settings read from the YAML file. Zero
// values mean "use the default".
type Tunables struct {
	Timezone    string            `yaml:"timezone,omitempty"`
	Load        LoadConfig        `yaml:"load,omitempty"`
	Predictions PredictionsConfig `yaml:"predictions,omitempty"`
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
}

// PeakWindow is a half-open hour range, e.g. {start: 17, end: 22}
type PeakWindow struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// LoadConfig tunes the load simulator
type LoadConfig struct {
	Interval           time.Duration `yaml:"interval,omitempty"`
	PeakWindows        []PeakWindow  `yaml:"peak_windows,omitempty"`
	PeakBaseLoad       float64       `yaml:"peak_base_load,omitempty"`
	OffPeakBaseLoad    float64       `yaml:"off_peak_base_load,omitempty"`
	IncentiveThreshold float64       `yaml:"incentive_threshold,omitempty"`
	BaseIncentiveRate  float64       `yaml:"base_incentive_rate,omitempty"`
	PeakIncentiveRate  float64       `yaml:"peak_incentive_rate,omitempty"`
}

// OutcomeWeights are the relative chances of each settlement outcome
type OutcomeWeights struct {
	Prevented float64 `yaml:"prevented"`
	Partial   float64 `yaml:"partial"`
	Occurred  float64 `yaml:"occurred"`
}

// PredictionsConfig tunes the prediction engine
type PredictionsConfig struct {
	Interval             time.Duration   `yaml:"interval,omitempty"`
	AlertLead            time.Duration   `yaml:"alert_lead,omitempty"`
	MaxTracked           int             `yaml:"max_tracked,omitempty"`
	SynthesisProbability *float64        `yaml:"synthesis_probability,omitempty"`
	ParticipationCeiling float64         `yaml:"participation_ceiling,omitempty"`
	HistoryLimit         int             `yaml:"history_limit,omitempty"`
	Weights              *OutcomeWeights `yaml:"outcome_weights,omitempty"`
	Areas                []domain.Area   `yaml:"areas,omitempty"`
	Seed                 *bool           `yaml:"seed,omitempty"`
}

// GatewayConfig tunes the wallet/contract gateway
type GatewayConfig struct {
	ExplorerURL   string        `yaml:"explorer_url,omitempty"`
	ChainID       int64         `yaml:"chain_id,omitempty"`
	NetworkName   string        `yaml:"network_name,omitempty"`
	Account       string        `yaml:"account,omitempty"`
	Balance       string        `yaml:"balance,omitempty"`
	RewardRate    float64       `yaml:"reward_rate,omitempty"`
	PeakBonus     float64       `yaml:"peak_bonus,omitempty"`
	RPCTimeout    time.Duration `yaml:"rpc_timeout,omitempty"`
	CommitConfirm time.Duration `yaml:"commit_confirm,omitempty"`
	ClaimConfirm  time.Duration `yaml:"claim_confirm,omitempty"`
	TradeConfirm  time.Duration `yaml:"trade_confirm,omitempty"`
	TxRetention   time.Duration `yaml:"tx_retention,omitempty"`
}

// Load reads the tunables file. A missing file yields the defaults.
func Load(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tunables{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var t Tunables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &t, nil
}

// Validate checks value ranges
func (t *Tunables) Validate() error {
	for _, w := range t.Load.PeakWindows {
		if w.Start < 0 || w.Start > 23 || w.End < 0 || w.End > 24 || w.Start == w.End {
			return fmt.Errorf("peak window %d-%d out of range", w.Start, w.End)
		}
	}
	if p := t.Predictions.SynthesisProbability; p != nil && (*p < 0 || *p > 1) {
		return fmt.Errorf("synthesis_probability %.2f not in [0,1]", *p)
	}
	if w := t.Predictions.Weights; w != nil {
		if w.Prevented < 0 || w.Partial < 0 || w.Occurred < 0 || w.Prevented+w.Partial+w.Occurred == 0 {
			return fmt.Errorf("outcome_weights must be non-negative with a positive sum")
		}
	}
	if _, err := t.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone peak hours are evaluated in
func (t *Tunables) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}

func (t *Tunables) location() *time.Location {
	loc, err := t.Location()
	if err != nil {
		return time.Local
	}
	return loc
}

// LoadSettings converts the load section, filling defaults
func (t *Tunables) LoadSettings() service.LoadSettings {
	s := service.DefaultLoadSettings()
	s.Location = t.location()
	c := t.Load
	if c.Interval > 0 {
		s.Interval = c.Interval
	}
	if len(c.PeakWindows) > 0 {
		s.PeakWindows = s.PeakWindows[:0:0]
		for _, w := range c.PeakWindows {
			s.PeakWindows = append(s.PeakWindows, service.PeakWindow{StartHour: w.Start, EndHour: w.End})
		}
	}
	setIfPositive(&s.PeakBaseLoad, c.PeakBaseLoad)
	setIfPositive(&s.OffPeakBaseLoad, c.OffPeakBaseLoad)
	setIfPositive(&s.IncentiveThreshold, c.IncentiveThreshold)
	setIfPositive(&s.BaseIncentiveRate, c.BaseIncentiveRate)
	setIfPositive(&s.PeakIncentiveRate, c.PeakIncentiveRate)
	return s
}

// PredictionSettings converts the predictions section, filling defaults
func (t *Tunables) PredictionSettings() service.PredictionSettings {
	s := service.DefaultPredictionSettings()
	s.Location = t.location()
	c := t.Predictions
	if c.Interval > 0 {
		s.Interval = c.Interval
	}
	if c.AlertLead > 0 {
		s.AlertLead = c.AlertLead
	}
	if c.MaxTracked > 0 {
		s.MaxTracked = c.MaxTracked
	}
	if c.SynthesisProbability != nil {
		s.SynthesisProbability = *c.SynthesisProbability
	}
	setIfPositive(&s.ParticipationCeiling, c.ParticipationCeiling)
	if c.HistoryLimit > 0 {
		s.HistoryLimit = c.HistoryLimit
	}
	if c.Weights != nil {
		s.Weights = service.OutcomeWeights{Prevented: c.Weights.Prevented, Partial: c.Weights.Partial, Occurred: c.Weights.Occurred}
	}
	if len(c.Areas) > 0 {
		s.Areas = c.Areas
	}
	if c.Seed != nil {
		s.Seed = *c.Seed
	}
	return s
}

// GatewaySettings converts the gateway section, filling defaults
func (t *Tunables) GatewaySettings(rpcURL string) service.GatewaySettings {
	s := service.DefaultGatewaySettings()
	s.RPCURL = rpcURL
	c := t.Gateway
	if c.ExplorerURL != "" {
		s.ExplorerURL = c.ExplorerURL
	}
	if c.ChainID > 0 {
		s.ChainID = c.ChainID
	}
	if c.NetworkName != "" {
		s.NetworkName = c.NetworkName
	}
	if c.Account != "" {
		s.Account = c.Account
	}
	if c.Balance != "" {
		s.Balance = c.Balance
	}
	if c.RewardRate > 0 {
		s.RewardRate = decimal.NewFromFloat(c.RewardRate)
	}
	if c.PeakBonus > 0 {
		s.PeakBonus = decimal.NewFromFloat(c.PeakBonus)
	}
	if c.RPCTimeout > 0 {
		s.RPCTimeout = c.RPCTimeout
	}
	if c.CommitConfirm > 0 {
		s.CommitConfirmDelay = c.CommitConfirm
	}
	if c.ClaimConfirm > 0 {
		s.ClaimConfirmDelay = c.ClaimConfirm
	}
	if c.TradeConfirm > 0 {
		s.TradeConfirmDelay = c.TradeConfirm
	}
	if c.TxRetention > 0 {
		s.TxRetention = c.TxRetention
	}
	return s
}

func setIfPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
