package calculator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

var (
	testLow  = decimal.NewFromFloat(2.0)
	testHigh = decimal.NewFromFloat(10.0)
)

// history builds rounds one minute apart, newest first, ending at now.
func history(now time.Time, mults ...string) []models.Round {
	out := make([]models.Round, 0, len(mults))
	for i, m := range mults {
		out = append(out, models.Round{
			Platform:   "aviator",
			Multiplier: decimal.RequireFromString(m),
			RoundTime:  now.Add(-time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestComputeFeatures(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rounds := history(now, "1.10", "1.50", "1.99", "2.00", "12.00", "5.50", "1.00")

	f := ComputeFeatures(rounds, now, testLow, testHigh)
	if f.LowStreak != 3 {
		t.Errorf("low streak = %d, want 3", f.LowStreak)
	}
	if !f.HighSeen || f.MinutesSinceHigh != 4 {
		t.Errorf("since high = %v (seen %v), want 4", f.MinutesSinceHigh, f.HighSeen)
	}
	want := map[string]int{"1.00-1.99": 4, "2.00-4.99": 1, "5.00-9.99": 1, "10.00+": 1}
	for k, v := range want {
		if f.Distribution[k] != v {
			t.Errorf("bucket %s = %d, want %d", k, f.Distribution[k], v)
		}
	}
	if f.AvgMultiplier != 3.58 {
		t.Errorf("avg = %v, want 3.58", f.AvgMultiplier)
	}
}

func TestComputeFeatures_NoHighInWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := ComputeFeatures(history(now, "1.20", "3.00", "1.40"), now, testLow, testHigh)
	if f.HighSeen || f.MinutesSinceHigh != 2 {
		t.Errorf("since high = %v (seen %v), want 2 from the oldest round", f.MinutesSinceHigh, f.HighSeen)
	}
}

func TestConfidence_Tiers(t *testing.T) {
	tests := []struct {
		streak int
		gap    float64
		want   float64
	}{
		{0, 0, 0.20},
		{3, 0, 0.30},
		{5, 9.9, 0.40},
		{8, 10, 0.60},
		{4, 25, 0.50},
		{12, 90, 0.80},
	}
	for _, tt := range tests {
		got := Confidence(Features{LowStreak: tt.streak, MinutesSinceHigh: tt.gap}, 0.94)
		if got != tt.want {
			t.Errorf("Confidence(streak=%d, gap=%v) = %v, want %v", tt.streak, tt.gap, got, tt.want)
		}
	}
}

func TestConfidence_AlwaysBelowCeiling(t *testing.T) {
	for _, max := range []float64{0.5, 0.7, 0.94} {
		for streak := 0; streak < 50; streak += 7 {
			for gap := 0.0; gap < 300; gap += 13 {
				c := Confidence(Features{LowStreak: streak, MinutesSinceHigh: gap}, max)
				if c < 0 || c > max || c >= config.MaxConfidenceCeiling {
					t.Fatalf("confidence %v out of bounds for max %v", c, max)
				}
			}
		}
	}
}
