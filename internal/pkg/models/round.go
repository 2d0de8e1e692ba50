package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinMultiplier is the smallest payout multiple a completed round can have.
var MinMultiplier = decimal.NewFromInt(1)

// Round is one completed game outcome as persisted in the history store.
type Round struct {
	ID         int64           `json:"id"`
	Platform   string          `json:"platform"`
	Multiplier decimal.Decimal `json:"multiplier"`
	RoundTime  time.Time       `json:"round_time"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}

// RawRow is one scraped result cell. DisplayOrder 0 is the newest row on the page.
type RawRow struct {
	Text         string
	DisplayOrder int
}

// Clock is an intra-day reading without a date, as shown by the source page.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// String returns the clock as HH:MM:SS.
func (c Clock) String() string {
	return time.Date(0, 1, 1, c.Hour, c.Minute, c.Second, 0, time.UTC).Format("15:04:05")
}

// NormalizedRound is a parsed RawRow before absolute time reconstruction.
type NormalizedRound struct {
	Platform     string
	Multiplier   decimal.Decimal
	Clock        Clock
	DisplayOrder int
}
