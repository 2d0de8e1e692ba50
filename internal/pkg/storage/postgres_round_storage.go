package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

// Ensure PostgresRoundStorage implements RoundStorage
var _ RoundStorage = (*PostgresRoundStorage)(nil)

// PostgresRoundStorage stores rounds in PostgreSQL.
type PostgresRoundStorage struct {
	db *sql.DB
}

func NewPostgresRoundStorage(cfg *config.PostgresConfig) (*PostgresRoundStorage, error) {
	db, err := OpenPostgres(cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresRoundStorage{db: db}, nil
}

// NewPostgresRoundStorageFromDB wraps an already opened database.
func NewPostgresRoundStorageFromDB(db *sql.DB) *PostgresRoundStorage {
	return &PostgresRoundStorage{db: db}
}

func (s *PostgresRoundStorage) InsertRound(ctx context.Context, r *models.Round, key models.DedupKey) (bool, error) {
	query := `
	INSERT INTO rounds (platform, multiplier, round_time, dedup_granularity_ms, dedup_bucket)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT DO NOTHING
	RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		r.Platform,
		r.Multiplier,
		r.RoundTime,
		key.Granularity.Duration().Milliseconds(),
		key.Bucket,
	).Scan(&r.ID, &r.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("insert round", err)
	}
	return true, nil
}

func (s *PostgresRoundStorage) HasRoundInWindow(ctx context.Context, platform string, multiplier decimal.Decimal, from, to time.Time) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM rounds
		WHERE platform = $1 AND multiplier = $2
		  AND round_time >= $3 AND round_time < $4
	)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, platform, multiplier, from, to).Scan(&exists); err != nil {
		return false, unavailable("check round window", err)
	}
	return exists, nil
}

func (s *PostgresRoundStorage) GetRecentRounds(ctx context.Context, platform string, limit int) ([]models.Round, error) {
	query := `
	SELECT id, platform, multiplier, round_time, created_at
	FROM rounds
	WHERE platform = $1
	ORDER BY round_time DESC, id DESC
	LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, platform, limit)
	if err != nil {
		return nil, unavailable("query recent rounds", err)
	}
	return scanRounds(rows)
}

func (s *PostgresRoundStorage) GetRoundsPage(ctx context.Context, platform string, after RoundCursor, limit int) ([]models.Round, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after.RoundTime.IsZero() {
		rows, err = s.db.QueryContext(ctx, `
		SELECT id, platform, multiplier, round_time, created_at
		FROM rounds
		WHERE platform = $1
		ORDER BY round_time ASC, id ASC
		LIMIT $2
		`, platform, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
		SELECT id, platform, multiplier, round_time, created_at
		FROM rounds
		WHERE platform = $1 AND (round_time, id) > ($2, $3)
		ORDER BY round_time ASC, id ASC
		LIMIT $4
		`, platform, after.RoundTime, after.ID, limit)
	}
	if err != nil {
		return nil, unavailable("query rounds page", err)
	}
	return scanRounds(rows)
}

func (s *PostgresRoundStorage) DeleteRounds(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM rounds WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, unavailable("delete rounds", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete rounds", err)
	}
	return n, nil
}

func (s *PostgresRoundStorage) CountRounds(ctx context.Context, platform string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds WHERE platform = $1`, platform).Scan(&n); err != nil {
		return 0, unavailable("count rounds", err)
	}
	return n, nil
}

func (s *PostgresRoundStorage) CountRoundsByPlatform(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform, COUNT(*) FROM rounds GROUP BY platform`)
	if err != nil {
		return nil, unavailable("count rounds by platform", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, unavailable("scan platform count", err)
		}
		out[platform] = n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate platform counts", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *PostgresRoundStorage) Close() error {
	return s.db.Close()
}

func scanRounds(rows *sql.Rows) ([]models.Round, error) {
	defer rows.Close()

	var out []models.Round
	for rows.Next() {
		var r models.Round
		if err := rows.Scan(&r.ID, &r.Platform, &r.Multiplier, &r.RoundTime, &r.CreatedAt); err != nil {
			return nil, unavailable("scan round", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate rounds", err)
	}
	return out, nil
}
