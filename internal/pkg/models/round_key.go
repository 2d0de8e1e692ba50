package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity is the time truncation used when deciding that two rounds are the same event.
type Granularity time.Duration

const (
	GranularitySecond = Granularity(time.Second)
	GranularityMinute = Granularity(time.Minute)
)

// ParseGranularity accepts "second", "minute" or any Go duration that is a positive
// whole number of seconds ("5s", "2m").
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "second", "sec", "s":
		return GranularitySecond, nil
	case "minute", "min", "m":
		return GranularityMinute, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid granularity %q: %w", s, err)
	}
	if d <= 0 || d%time.Second != 0 {
		return 0, fmt.Errorf("invalid granularity %q: must be a positive whole number of seconds", s)
	}
	return Granularity(d), nil
}

func (g Granularity) Duration() time.Duration { return time.Duration(g) }

func (g Granularity) String() string {
	switch g {
	case GranularitySecond:
		return "second"
	case GranularityMinute:
		return "minute"
	}
	return time.Duration(g).String()
}

// UnmarshalYAML lets config files say `granularity: minute`.
func (g *Granularity) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseGranularity(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// DedupKey identifies a real-world round under a granularity.
// Two rounds with equal keys are treated as the same event.
type DedupKey struct {
	Platform    string
	Multiplier  string
	Bucket      time.Time
	Granularity Granularity
}

// NewDedupKey is the only place dedup keys are built. The online writer and the
// offline reconciliation jobs must both go through it.
func NewDedupKey(platform string, multiplier decimal.Decimal, roundTime time.Time, g Granularity) DedupKey {
	if g <= 0 {
		g = GranularitySecond
	}
	return DedupKey{
		Platform:    normalizeKeyPart(platform),
		Multiplier:  multiplier.StringFixed(2),
		Bucket:      roundTime.UTC().Truncate(g.Duration()),
		Granularity: g,
	}
}

// KeyForRound builds the dedup key of a persisted or candidate round.
func KeyForRound(r Round, g Granularity) DedupKey {
	return NewDedupKey(r.Platform, r.Multiplier, r.RoundTime, g)
}

// WindowEnd is the exclusive end of the key's time window.
func (k DedupKey) WindowEnd() time.Time {
	return k.Bucket.Add(k.Granularity.Duration())
}

// String is stable and used as a cache key.
func (k DedupKey) String() string {
	return k.Platform + "|" + k.Multiplier + "|" + k.Bucket.Format(time.RFC3339) + "|" + k.Granularity.String()
}

func normalizeKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "|", " ")
	return strings.Join(strings.Fields(s), " ")
}
