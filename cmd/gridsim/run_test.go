package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsmart/backend/internal/repository/sqlite"
)

func TestRunPersistsSamples(t *testing.T) {
	dir := t.TempDir()
	cfgFile = filepath.Join(dir, "missing.yaml")
	dbPath = filepath.Join(dir, "sim.db")
	randSeed = 42
	runTicks = 48
	runStep = 30 * time.Minute
	runStart = "2024-07-10T00:00:00Z"
	runQuiet = true
	t.Cleanup(func() {
		cfgFile, dbPath, randSeed, runStart, runQuiet = "", "", 0, "", false
	})

	require.NoError(t, runRun(runCmd, nil))

	db, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	samples, err := db.GetEnergyHistory(context.Background(), from, from.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, samples, 48)

	// both demo predictions start within the simulated day
	records, err := db.GetPredictionRecords(context.Background(), 100)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
	for _, r := range records {
		assert.NotContains(t, r.ID, "history-")
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	runTicks = 0
	t.Cleanup(func() { runTicks = 288 })
	assert.Error(t, runRun(runCmd, nil))
}

func TestRecordsRequiresDB(t *testing.T) {
	dbPath = ""
	assert.Error(t, runRecords(recordsCmd, nil))
}
