package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsmart/backend/internal/service"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "SIM_CONFIG", "KAFKA_BROKERS", "BROADCAST_PREFIX", "GO_ENV"} {
		t.Setenv(key, "")
	}
	e := FromEnv()
	assert.Equal(t, "8080", e.Port)
	assert.Equal(t, "gridsmart.yaml", e.SimConfig)
	assert.Equal(t, "gridsmart", e.BroadcastPrefix)
	assert.Empty(t, e.KafkaBrokers)
	assert.False(t, e.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("GO_ENV", "Production")
	t.Setenv("CHAIN_RPC_URL", "http://node:8545")

	e := FromEnv()
	assert.Equal(t, "9000", e.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, e.KafkaBrokers)
	assert.True(t, e.IsProduction())
	assert.Equal(t, "http://node:8545", e.ChainRPCURL)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown", slog.String("k", "v"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "k=v")
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	tun, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	load := tun.LoadSettings()
	want := service.DefaultLoadSettings()
	assert.Equal(t, want.Interval, load.Interval)
	assert.Equal(t, want.PeakWindows, load.PeakWindows)

	pred := tun.PredictionSettings()
	assert.Equal(t, 30*time.Second, pred.Interval)
	assert.True(t, pred.Seed)
	assert.Equal(t, 0.05, pred.SynthesisProbability)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridsmart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: UTC
load:
  interval: 2s
  peak_windows:
    - {start: 7, end: 9}
  incentive_threshold: 80
predictions:
  interval: 1m
  synthesis_probability: 0
  seed: false
  outcome_weights: {prevented: 1, partial: 0, occurred: 1}
  areas:
    - {area: Khayelitsha, city: Cape Town}
gateway:
  chain_id: 1337
  reward_rate: 3
  trade_confirm: 1s
  tx_retention: 10m
`), 0o600))

	tun, err := Load(path)
	require.NoError(t, err)

	load := tun.LoadSettings()
	assert.Equal(t, 2*time.Second, load.Interval)
	assert.Equal(t, []service.PeakWindow{{StartHour: 7, EndHour: 9}}, load.PeakWindows)
	assert.Equal(t, 80.0, load.IncentiveThreshold)
	assert.Equal(t, 70.0, load.PeakBaseLoad)
	assert.Equal(t, time.UTC, load.Location)

	pred := tun.PredictionSettings()
	assert.Equal(t, time.Minute, pred.Interval)
	assert.Zero(t, pred.SynthesisProbability)
	assert.False(t, pred.Seed)
	assert.Equal(t, service.OutcomeWeights{Prevented: 1, Occurred: 1}, pred.Weights)
	require.Len(t, pred.Areas, 1)
	assert.Equal(t, "Khayelitsha", pred.Areas[0].Area)

	gw := tun.GatewaySettings("http://node")
	assert.Equal(t, "http://node", gw.RPCURL)
	assert.Equal(t, int64(1337), gw.ChainID)
	assert.True(t, decimal.NewFromInt(3).Equal(gw.RewardRate))
	assert.Equal(t, time.Second, gw.TradeConfirmDelay)
	assert.Equal(t, 3*time.Second, gw.CommitConfirmDelay)
	assert.Equal(t, 10*time.Minute, gw.TxRetention)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"window.yaml":  "load:\n  peak_windows:\n    - {start: 25, end: 3}\n",
		"prob.yaml":    "predictions:\n  synthesis_probability: 1.5\n",
		"weights.yaml": "predictions:\n  outcome_weights: {prevented: 0, partial: 0, occurred: 0}\n",
		"tz.yaml":      "timezone: Not/AZone\n",
		"syntax.yaml":  "load: [",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}
