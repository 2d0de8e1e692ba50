package parsers

import (
	"context"
	"errors"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

// ErrSourceUnavailable wraps every failure to obtain rows from a feed: navigation
// timeouts, missing selectors, network errors. The poller retries next cycle.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrUnknownPlatform is returned for a platform the reader was not configured with.
var ErrUnknownPlatform = errors.New("unknown platform")

// Reader fetches the most recent result rows of a platform's public feed.
type Reader interface {
	// FetchLatestRows returns at most max_rows rows, newest first (DisplayOrder 0).
	FetchLatestRows(ctx context.Context, platform string) ([]models.RawRow, error)
	Close() error
}
