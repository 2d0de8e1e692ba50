package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

// ErrStoreUnavailable wraps every backend failure that is not a uniqueness conflict.
var ErrStoreUnavailable = errors.New("store unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// RoundCursor is a keyset position in (round_time, id) order. The zero value starts at the beginning.
type RoundCursor struct {
	RoundTime time.Time
	ID        int64
}

// CursorAfter returns the cursor positioned after r.
func CursorAfter(r models.Round) RoundCursor {
	return RoundCursor{RoundTime: r.RoundTime, ID: r.ID}
}

// RoundStorage is the history store query surface.
type RoundStorage interface {
	// InsertRound inserts r unless a round with the same dedup key exists.
	// Returns false, nil on a uniqueness conflict. Sets r.ID on success.
	InsertRound(ctx context.Context, r *models.Round, key models.DedupKey) (bool, error)

	// HasRoundInWindow reports whether a round with the platform and multiplier exists with round_time in [from, to).
	HasRoundInWindow(ctx context.Context, platform string, multiplier decimal.Decimal, from, to time.Time) (bool, error)

	// GetRecentRounds returns up to limit rounds, newest first.
	GetRecentRounds(ctx context.Context, platform string, limit int) ([]models.Round, error)

	// GetRoundsPage returns up to limit rounds after the cursor, oldest first.
	GetRoundsPage(ctx context.Context, platform string, after RoundCursor, limit int) ([]models.Round, error)

	// DeleteRounds deletes the given ids and returns the number of rows removed.
	DeleteRounds(ctx context.Context, ids []int64) (int64, error)

	CountRounds(ctx context.Context, platform string) (int64, error)
	CountRoundsByPlatform(ctx context.Context) (map[string]int64, error)

	Close() error
}

// AdvisoryStorage is the advisory store query surface.
type AdvisoryStorage interface {
	// InsertAdvisory inserts a. Returns false, nil when a valid advisory already owns the hour bucket.
	InsertAdvisory(ctx context.Context, a *models.Advisory) (bool, error)

	// HasValidAdvisory reports whether a non-error advisory for platform was created in [from, to).
	HasValidAdvisory(ctx context.Context, platform string, from, to time.Time) (bool, error)

	// GetActiveAdvisories returns valid, active, unexpired advisories newest first.
	GetActiveAdvisories(ctx context.Context, platform string, now time.Time, limit int) ([]models.Advisory, error)

	Close() error
}

// SeenCache remembers dedup keys that are known to be persisted.
type SeenCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
	Close() error
}

// NopSeenCache never remembers anything.
type NopSeenCache struct{}

func (NopSeenCache) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopSeenCache) Mark(context.Context, string) error         { return nil }
func (NopSeenCache) Close() error                               { return nil }
