package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridsmart/backend/internal/config"
	"github.com/gridsmart/backend/internal/repository/sqlite"
	"github.com/gridsmart/backend/internal/service"
)

var (
	cfgFile  string
	dbPath   string
	randSeed int64
)

var rootCmd = &cobra.Command{
	Use:   "gridsim",
	Short: "Run the grid simulators offline",
	Long: `gridsim drives the load simulator and prediction engine on a simulated clock,
without the HTTP server. Runs can be persisted to a local SQLite database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "simulator config file (default is ./gridsmart.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database file")
	rootCmd.PersistentFlags().Int64Var(&randSeed, "seed", 0, "random seed (default is time based)")
}

// loadTunables loads the simulator config file
func loadTunables() (*config.Tunables, error) {
	path := cfgFile
	if path == "" {
		path = "gridsmart.yaml"
	}
	return config.Load(path)
}

func newRand() service.RandSource {
	if randSeed == 0 {
		return service.NewRandSource(time.Now().UnixNano())
	}
	return service.NewRandSource(randSeed)
}

// openDB opens the SQLite store, or returns nil when --db is not set
func openDB() (*sqlite.Repository, error) {
	if dbPath == "" {
		return nil, nil
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	return sqlite.Open(dbPath)
}
