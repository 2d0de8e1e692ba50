// Package normalize turns scraped result cells into typed rounds.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

var (
	// trailing H:MM:SS or HH:MM:SS
	clockRe = regexp.MustCompile(`(\d{1,2}):([0-5]\d):([0-5]\d)\s*$`)
	// leading multiplier with an optional x marker
	multiplierRe = regexp.MustCompile(`^\s*(\d{1,10}(?:[.,]\d{1,2})?)\s*[xX×]?`)
)

// Parse reads one result cell such as "2,45x 12:01:05". It returns false for
// anything that does not carry both a multiplier >= 1 and a clock reading.
func Parse(platform string, row models.RawRow) (models.NormalizedRound, bool) {
	text := strings.TrimSpace(row.Text)

	loc := clockRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return models.NormalizedRound{}, false
	}
	clock, shortHour, ok := parseClock(text[loc[2]:loc[3]], text[loc[4]:loc[5]], text[loc[6]:loc[7]])
	if !ok {
		return models.NormalizedRound{}, false
	}

	head := text[:loc[0]]
	if shortHour {
		// the first hour digit belongs to the text before the clock
		head = text[:loc[2]+1]
	}
	m := multiplierRe.FindStringSubmatch(head)
	if m == nil {
		return models.NormalizedRound{}, false
	}
	mult, err := decimal.NewFromString(strings.Replace(m[1], ",", ".", 1))
	if err != nil || mult.LessThan(models.MinMultiplier) {
		return models.NormalizedRound{}, false
	}

	return models.NormalizedRound{
		Platform:     platform,
		Multiplier:   mult.Round(2),
		Clock:        clock,
		DisplayOrder: row.DisplayOrder,
	}, true
}

// ParseBatch parses rows independently and reports how many were dropped.
func ParseBatch(platform string, rows []models.RawRow) ([]models.NormalizedRound, int) {
	out := make([]models.NormalizedRound, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		nr, ok := Parse(platform, r)
		if !ok {
			dropped++
			continue
		}
		out = append(out, nr)
	}
	return out, dropped
}

// parseClock falls back to the last hour digit when a two-digit hour is out of range.
func parseClock(hh, mm, ss string) (c models.Clock, shortHour, ok bool) {
	h, err := strconv.Atoi(hh)
	if err != nil {
		return models.Clock{}, false, false
	}
	if h > 23 && len(hh) == 2 {
		h = int(hh[1] - '0')
		shortHour = true
	}
	if h > 23 {
		return models.Clock{}, false, false
	}
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	return models.Clock{Hour: h, Minute: m, Second: s}, shortHour, true
}
