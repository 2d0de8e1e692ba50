package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

// Ensure PostgresAdvisoryStorage implements AdvisoryStorage
var _ AdvisoryStorage = (*PostgresAdvisoryStorage)(nil)

// PostgresAdvisoryStorage stores advisories in PostgreSQL.
// One valid advisory per (platform, hour_bucket) is enforced by a partial unique index.
type PostgresAdvisoryStorage struct {
	db *sql.DB
}

func NewPostgresAdvisoryStorage(cfg *config.PostgresConfig) (*PostgresAdvisoryStorage, error) {
	db, err := OpenPostgres(cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresAdvisoryStorage{db: db}, nil
}

func NewPostgresAdvisoryStorageFromDB(db *sql.DB) *PostgresAdvisoryStorage {
	return &PostgresAdvisoryStorage{db: db}
}

func (s *PostgresAdvisoryStorage) InsertAdvisory(ctx context.Context, a *models.Advisory) (bool, error) {
	query := `
	INSERT INTO advisories (
		platform, prediction_type, confidence, suggested_range, reason,
		analysis_data, hour_bucket, created_at, expires_at, is_active
	) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
	ON CONFLICT DO NOTHING
	RETURNING id
	`

	data := string(a.AnalysisData)
	if data == "" {
		data = "{}"
	}

	err := s.db.QueryRowContext(ctx, query,
		a.Platform,
		string(a.PredictionType),
		a.Confidence,
		a.SuggestedRange,
		a.Reason,
		data,
		a.HourBucket,
		a.CreatedAt,
		a.ExpiresAt,
		a.IsActive,
	).Scan(&a.ID)

	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("insert advisory", err)
	}
	return true, nil
}

func (s *PostgresAdvisoryStorage) HasValidAdvisory(ctx context.Context, platform string, from, to time.Time) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM advisories
		WHERE platform = $1
		  AND created_at >= $2 AND created_at < $3
		  AND COALESCE(analysis_data->>'status', '') <> 'error'
	)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, platform, from, to).Scan(&exists); err != nil {
		return false, unavailable("check advisory window", err)
	}
	return exists, nil
}

func (s *PostgresAdvisoryStorage) GetActiveAdvisories(ctx context.Context, platform string, now time.Time, limit int) ([]models.Advisory, error) {
	query := `
	SELECT id, platform, prediction_type, confidence, suggested_range, reason,
	       analysis_data, hour_bucket, created_at, expires_at, is_active
	FROM advisories
	WHERE platform = $1
	  AND is_active
	  AND expires_at > $2
	  AND COALESCE(analysis_data->>'status', '') <> 'error'
	ORDER BY created_at DESC
	LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, platform, now, limit)
	if err != nil {
		return nil, unavailable("query active advisories", err)
	}
	defer rows.Close()

	var out []models.Advisory
	for rows.Next() {
		var a models.Advisory
		var predictionType string
		var data []byte
		if err := rows.Scan(
			&a.ID,
			&a.Platform,
			&predictionType,
			&a.Confidence,
			&a.SuggestedRange,
			&a.Reason,
			&data,
			&a.HourBucket,
			&a.CreatedAt,
			&a.ExpiresAt,
			&a.IsActive,
		); err != nil {
			return nil, unavailable("scan advisory", err)
		}
		a.PredictionType = models.PredictionType(predictionType)
		a.AnalysisData = data
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate advisories", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *PostgresAdvisoryStorage) Close() error {
	return s.db.Close()
}
