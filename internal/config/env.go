// Package config reads process settings from the environment and simulator
// tunables from a YAML file.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds settings taken from environment variables
type Env struct {
	Port            string
	DatabaseURL     string
	SQLitePath      string
	Env             string
	LogLevel        string
	SimConfig       string
	MQTTBroker      string
	MQTTUsername    string
	MQTTPassword    string
	KafkaBrokers    []string
	BroadcastPrefix string
	ChainRPCURL     string
}

// LoadDotEnv loads a .env file into the environment if one exists. It
// reports whether a file was loaded.
func LoadDotEnv(files ...string) bool {
	return godotenv.Load(files...) == nil
}

// FromEnv reads the environment
func FromEnv() *Env {
	return &Env{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", ""),
		Env:             getEnv("GO_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		SimConfig:       getEnv("SIM_CONFIG", "gridsmart.yaml"),
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		BroadcastPrefix: getEnv("BROADCAST_PREFIX", "gridsmart"),
		ChainRPCURL:     getEnv("CHAIN_RPC_URL", ""),
	}
}

// IsProduction reports whether GO_ENV is production
func (e *Env) IsProduction() bool {
	return strings.EqualFold(e.Env, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to w at the given level
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}
