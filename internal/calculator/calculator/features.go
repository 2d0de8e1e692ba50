package calculator

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

// Distribution bucket labels, in display order.
var distributionBuckets = []struct {
	label string
	min   decimal.Decimal
}{
	{"1.00-1.99", decimal.NewFromInt(1)},
	{"2.00-4.99", decimal.NewFromInt(2)},
	{"5.00-9.99", decimal.NewFromInt(5)},
	{"10.00+", decimal.NewFromInt(10)},
}

// Features summarize the recent history of one platform.
type Features struct {
	Rounds           int            `json:"rounds"`
	LowStreak        int            `json:"low_streak"`
	MinutesSinceHigh float64        `json:"minutes_since_high"`
	HighSeen         bool           `json:"high_seen"`
	AvgMultiplier    float64        `json:"avg_multiplier"`
	Distribution     map[string]int `json:"distribution"`
	LastRoundAt      time.Time      `json:"last_round_at"`
}

// ComputeFeatures expects rounds newest first.
func ComputeFeatures(rounds []models.Round, now time.Time, low, high decimal.Decimal) Features {
	f := Features{
		Rounds:       len(rounds),
		Distribution: make(map[string]int, len(distributionBuckets)),
	}
	for _, b := range distributionBuckets {
		f.Distribution[b.label] = 0
	}
	if len(rounds) == 0 {
		return f
	}
	f.LastRoundAt = rounds[0].RoundTime

	for _, r := range rounds {
		if !r.Multiplier.LessThan(low) {
			break
		}
		f.LowStreak++
	}

	// no high round in the window: count from the oldest round we have
	since := rounds[len(rounds)-1].RoundTime
	for _, r := range rounds {
		if !r.Multiplier.LessThan(high) {
			since = r.RoundTime
			f.HighSeen = true
			break
		}
	}
	f.MinutesSinceHigh = math.Max(0, math.Round(now.Sub(since).Minutes()*100)/100)

	sum := decimal.Zero
	for _, r := range rounds {
		sum = sum.Add(r.Multiplier)
		for i := len(distributionBuckets) - 1; i >= 0; i-- {
			if !r.Multiplier.LessThan(distributionBuckets[i].min) {
				f.Distribution[distributionBuckets[i].label]++
				break
			}
		}
	}
	f.AvgMultiplier = sum.Div(decimal.NewFromInt(int64(len(rounds)))).Round(2).InexactFloat64()
	return f
}

const baseConfidence = 0.20

var (
	streakTiers = []tier{{8, 0.30}, {5, 0.20}, {3, 0.10}}
	gapTiers    = []tier{{30, 0.30}, {20, 0.20}, {10, 0.10}}
)

type tier struct {
	atLeast float64
	weight  float64
}

func tierWeight(tiers []tier, v float64) float64 {
	for _, t := range tiers {
		if v >= t.atLeast {
			return t.weight
		}
	}
	return 0
}

// Confidence combines the streak and gap tiers and clamps to [0, maxConfidence].
func Confidence(f Features, maxConfidence float64) float64 {
	c := baseConfidence +
		tierWeight(streakTiers, float64(f.LowStreak)) +
		tierWeight(gapTiers, f.MinutesSinceHigh)
	c = math.Round(c*100) / 100
	return math.Min(math.Max(c, 0), maxConfidence)
}
