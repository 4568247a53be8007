// Package sqlite stores energy samples and prediction records in a local
// SQLite file, for running without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gridsmart/backend/internal/domain"
)

// timestamps are stored as fixed-width UTC text so they sort lexically
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const maxHistoryRows = 2000

// Repository implements domain.DataRepository on SQLite
type Repository struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Repository, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// every pooled connection to :memory: would be its own empty database
	conn.SetMaxOpenConns(1)

	r := &Repository{conn: conn}
	if err := r.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: initializing schema: %w", err)
	}
	return r, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.conn.Close()
}

func (r *Repository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS energy_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		transformer_load REAL NOT NULL,
		current_usage REAL NOT NULL,
		solar_generation REAL NOT NULL,
		net_usage REAL NOT NULL,
		incentive_rate REAL NOT NULL,
		is_peak_time INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_energy_timestamp ON energy_samples(timestamp);

	CREATE TABLE IF NOT EXISTS prediction_records (
		id TEXT PRIMARY KEY,
		issued_at TEXT NOT NULL,
		settled_at TEXT NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		area TEXT NOT NULL,
		city TEXT NOT NULL,
		probability REAL NOT NULL,
		outcome TEXT NOT NULL,
		participation_rate REAL NOT NULL,
		actual_load REAL NOT NULL,
		total_participants INTEGER NOT NULL,
		energy_saved REAL NOT NULL,
		rewards_distributed REAL NOT NULL,
		accuracy_score REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_settled ON prediction_records(settled_at);
	`
	_, err := r.conn.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

// SaveEnergySample persists one load simulator tick
func (r *Repository) SaveEnergySample(ctx context.Context, s domain.EnergySample) error {
	query := `
	INSERT INTO energy_samples (timestamp, transformer_load, current_usage, solar_generation, net_usage, incentive_rate, is_peak_time)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn.ExecContext(ctx, query,
		formatTime(s.Timestamp), s.TransformerLoad, s.CurrentUsage, s.SolarGeneration,
		s.NetUsage, s.IncentiveRate, s.IsPeakTime,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting energy sample: %w", err)
	}
	return nil
}

// SavePredictionRecord persists a settled prediction, ignoring duplicates
func (r *Repository) SavePredictionRecord(ctx context.Context, rec domain.PredictionRecord) error {
	query := `
	INSERT OR IGNORE INTO prediction_records (
		id, issued_at, settled_at, window_start, window_end, area, city,
		probability, outcome, participation_rate, actual_load,
		total_participants, energy_saved, rewards_distributed, accuracy_score
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn.ExecContext(ctx, query,
		rec.ID, formatTime(rec.IssuedAt), formatTime(rec.Timestamp),
		formatTime(rec.TimeRange.Start), formatTime(rec.TimeRange.End), rec.Area, rec.City,
		rec.Probability, string(rec.Outcome), rec.ParticipationRate, rec.ActualLoad,
		rec.TotalParticipants, rec.EnergySaved, rec.RewardsDistributed, rec.AccuracyScore,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting prediction record %s: %w", rec.ID, err)
	}
	return nil
}

// GetEnergyHistory retrieves samples within [from, to], newest first
func (r *Repository) GetEnergyHistory(ctx context.Context, from, to time.Time) ([]domain.EnergySample, error) {
	query := `
	SELECT timestamp, transformer_load, current_usage, solar_generation, net_usage, incentive_rate, is_peak_time
	FROM energy_samples
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`
	rows, err := r.conn.QueryContext(ctx, query, formatTime(from), formatTime(to), maxHistoryRows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying energy samples: %w", err)
	}
	defer rows.Close()

	var results []domain.EnergySample
	for rows.Next() {
		var s domain.EnergySample
		var ts string
		if err := rows.Scan(&ts, &s.TransformerLoad, &s.CurrentUsage, &s.SolarGeneration,
			&s.NetUsage, &s.IncentiveRate, &s.IsPeakTime); err != nil {
			return nil, fmt.Errorf("sqlite: scanning energy sample: %w", err)
		}
		if s.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("sqlite: parsing timestamp: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: reading energy samples: %w", err)
	}
	return results, nil
}

// GetPredictionRecords retrieves up to limit records, most recently settled first
func (r *Repository) GetPredictionRecords(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	query := `
	SELECT id, issued_at, settled_at, window_start, window_end, area, city,
		probability, outcome, participation_rate, actual_load,
		total_participants, energy_saved, rewards_distributed, accuracy_score
	FROM prediction_records
	ORDER BY settled_at DESC, id ASC
	LIMIT ?
	`
	rows, err := r.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying prediction records: %w", err)
	}
	defer rows.Close()

	var results []domain.PredictionRecord
	for rows.Next() {
		var rec domain.PredictionRecord
		var issued, settled, start, end, outcome string
		if err := rows.Scan(&rec.ID, &issued, &settled, &start, &end, &rec.Area, &rec.City,
			&rec.Probability, &outcome, &rec.ParticipationRate, &rec.ActualLoad,
			&rec.TotalParticipants, &rec.EnergySaved, &rec.RewardsDistributed, &rec.AccuracyScore); err != nil {
			return nil, fmt.Errorf("sqlite: scanning prediction record: %w", err)
		}
		for _, f := range []struct {
			dst *time.Time
			src string
		}{
			{&rec.IssuedAt, issued},
			{&rec.Timestamp, settled},
			{&rec.TimeRange.Start, start},
			{&rec.TimeRange.End, end},
		} {
			if *f.dst, err = parseTime(f.src); err != nil {
				return nil, fmt.Errorf("sqlite: parsing record %s: %w", rec.ID, err)
			}
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.Status = domain.StatusCompleted
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: reading prediction records: %w", err)
	}
	return results, nil
}

// Health checks database connectivity
func (r *Repository) Health(ctx context.Context) error {
	if err := r.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}
