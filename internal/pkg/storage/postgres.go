package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
)

const uniqueViolation = "23505"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS rounds (
	id BIGSERIAL PRIMARY KEY,
	platform VARCHAR(100) NOT NULL,
	multiplier NUMERIC(12, 2) NOT NULL CHECK (multiplier >= 1.00),
	round_time TIMESTAMPTZ NOT NULL,
	dedup_granularity_ms BIGINT NOT NULL,
	dedup_bucket TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (platform, multiplier, dedup_granularity_ms, dedup_bucket)
);

CREATE INDEX IF NOT EXISTS idx_rounds_platform_time ON rounds(platform, round_time DESC, id DESC);

CREATE TABLE IF NOT EXISTS advisories (
	id BIGSERIAL PRIMARY KEY,
	platform VARCHAR(100) NOT NULL,
	prediction_type VARCHAR(32) NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	suggested_range VARCHAR(64) NOT NULL,
	reason TEXT NOT NULL,
	analysis_data JSONB NOT NULL,
	hour_bucket TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_advisories_platform_created ON advisories(platform, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS ux_advisories_valid_hour ON advisories(platform, hour_bucket)
	WHERE COALESCE(analysis_data->>'status', '') <> 'error';
`

// OpenPostgres opens and pings a database and makes sure the schema exists.
func OpenPostgres(cfg *config.PostgresConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := InitSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("PostgreSQL storage initialized")
	return db, nil
}

// InitSchema creates tables and indexes if they are missing.
func InitSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
