package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridsmart/backend/internal/domain"
)

// maxHistoryRows caps a single energy history query
const maxHistoryRows = 2000

const schema = `
	CREATE TABLE IF NOT EXISTS energy_samples (
		id               BIGSERIAL PRIMARY KEY,
		timestamp        TIMESTAMPTZ NOT NULL,
		transformer_load DOUBLE PRECISION NOT NULL,
		current_usage    DOUBLE PRECISION NOT NULL,
		solar_generation DOUBLE PRECISION NOT NULL,
		net_usage        DOUBLE PRECISION NOT NULL,
		incentive_rate   DOUBLE PRECISION NOT NULL,
		is_peak_time     BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS energy_samples_timestamp_idx ON energy_samples (timestamp);

	CREATE TABLE IF NOT EXISTS prediction_records (
		id                  TEXT PRIMARY KEY,
		issued_at           TIMESTAMPTZ NOT NULL,
		settled_at          TIMESTAMPTZ NOT NULL,
		window_start        TIMESTAMPTZ NOT NULL,
		window_end          TIMESTAMPTZ NOT NULL,
		area                TEXT NOT NULL,
		city                TEXT NOT NULL,
		probability         DOUBLE PRECISION NOT NULL,
		outcome             TEXT NOT NULL,
		participation_rate  DOUBLE PRECISION NOT NULL,
		actual_load         DOUBLE PRECISION NOT NULL,
		total_participants  INTEGER NOT NULL,
		energy_saved        DOUBLE PRECISION NOT NULL,
		rewards_distributed DOUBLE PRECISION NOT NULL,
		accuracy_score      DOUBLE PRECISION NOT NULL
	);
	CREATE INDEX IF NOT EXISTS prediction_records_settled_idx ON prediction_records (settled_at DESC);
`

// PostgresRepository implements domain.DataRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Open connects to databaseURL and verifies the connection
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres: empty database url")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables if they do not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// SaveEnergySample persists one load simulator tick
func (r *PostgresRepository) SaveEnergySample(ctx context.Context, s domain.EnergySample) error {
	query := `
		INSERT INTO energy_samples (
			timestamp, transformer_load, current_usage, solar_generation,
			net_usage, incentive_rate, is_peak_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		s.Timestamp, s.TransformerLoad, s.CurrentUsage, s.SolarGeneration,
		s.NetUsage, s.IncentiveRate, s.IsPeakTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save energy sample: %w", err)
	}

	return nil
}

// SavePredictionRecord persists a settled prediction, ignoring known ids
func (r *PostgresRepository) SavePredictionRecord(ctx context.Context, rec domain.PredictionRecord) error {
	query := `
		INSERT INTO prediction_records (
			id, issued_at, settled_at, window_start, window_end, area, city,
			probability, outcome, participation_rate, actual_load,
			total_participants, energy_saved, rewards_distributed, accuracy_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.IssuedAt, rec.Timestamp, rec.TimeRange.Start, rec.TimeRange.End, rec.Area, rec.City,
		rec.Probability, string(rec.Outcome), rec.ParticipationRate, rec.ActualLoad,
		rec.TotalParticipants, rec.EnergySaved, rec.RewardsDistributed, rec.AccuracyScore,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save prediction record %s: %w", rec.ID, err)
	}

	return nil
}

// GetEnergyHistory retrieves energy samples from PostgreSQL
func (r *PostgresRepository) GetEnergyHistory(ctx context.Context, from, to time.Time) ([]domain.EnergySample, error) {
	query := `
		SELECT timestamp, transformer_load, current_usage, solar_generation,
			   net_usage, incentive_rate, is_peak_time
		FROM energy_samples
		WHERE timestamp BETWEEN $1 AND $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, from, to, maxHistoryRows)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query energy samples: %w", err)
	}
	defer rows.Close()

	var results []domain.EnergySample
	for rows.Next() {
		var s domain.EnergySample
		err := rows.Scan(
			&s.Timestamp, &s.TransformerLoad, &s.CurrentUsage, &s.SolarGeneration,
			&s.NetUsage, &s.IncentiveRate, &s.IsPeakTime,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan energy row: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read energy rows: %w", err)
	}

	return results, nil
}

// GetPredictionRecords retrieves settled predictions, newest first
func (r *PostgresRepository) GetPredictionRecords(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	query := `
		SELECT id, issued_at, settled_at, window_start, window_end, area, city,
			   probability, outcome, participation_rate, actual_load,
			   total_participants, energy_saved, rewards_distributed, accuracy_score
		FROM prediction_records
		ORDER BY settled_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query prediction records: %w", err)
	}
	defer rows.Close()

	var results []domain.PredictionRecord
	for rows.Next() {
		var rec domain.PredictionRecord
		var outcome string
		err := rows.Scan(
			&rec.ID, &rec.IssuedAt, &rec.Timestamp, &rec.TimeRange.Start, &rec.TimeRange.End, &rec.Area, &rec.City,
			&rec.Probability, &outcome, &rec.ParticipationRate, &rec.ActualLoad,
			&rec.TotalParticipants, &rec.EnergySaved, &rec.RewardsDistributed, &rec.AccuracyScore,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan prediction row: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.Status = domain.StatusCompleted
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read prediction rows: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
