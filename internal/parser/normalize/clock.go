package normalize

import (
	"time"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

// Resolve places a date-less clock reading on the most recent day on which it
// is not in the future relative to now.
func Resolve(c models.Clock, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	candidate := time.Date(n.Year(), n.Month(), n.Day(), c.Hour, c.Minute, c.Second, 0, loc)
	if candidate.After(now) {
		candidate = time.Date(n.Year(), n.Month(), n.Day()-1, c.Hour, c.Minute, c.Second, 0, loc)
	}
	return candidate
}

// SubSecondOffset orders rounds that share a clock second: newer rows
// (smaller display order) get the larger offset.
func SubSecondOffset(displayOrder int) time.Duration {
	ms := 999 - displayOrder
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Reconstruct is Resolve plus the display-order offset.
func Reconstruct(c models.Clock, displayOrder int, now time.Time, loc *time.Location) time.Time {
	return Resolve(c, now, loc).Add(SubSecondOffset(displayOrder))
}

// ToRound builds the round to persist from a parsed cell.
func ToRound(nr models.NormalizedRound, now time.Time, loc *time.Location) models.Round {
	return models.Round{
		Platform:   nr.Platform,
		Multiplier: nr.Multiplier,
		RoundTime:  Reconstruct(nr.Clock, nr.DisplayOrder, now, loc),
	}
}
