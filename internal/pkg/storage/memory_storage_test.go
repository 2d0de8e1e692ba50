package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

func round(platform, mult string, t time.Time) *models.Round {
	return &models.Round{Platform: platform, Multiplier: decimal.RequireFromString(mult), RoundTime: t}
}

func TestMemoryStorage_InsertRoundDedup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	base := time.Date(2024, 3, 1, 10, 0, 0, 100_000_000, time.UTC)

	r1 := round("aviator", "2.50", base)
	ok, err := s.InsertRound(ctx, r1, models.KeyForRound(*r1, models.GranularitySecond))
	if err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}
	if r1.ID == 0 {
		t.Fatal("expected id to be set")
	}

	// same second, different sub-second offset
	r2 := round("aviator", "2.5", base.Add(500*time.Millisecond))
	ok, err = s.InsertRound(ctx, r2, models.KeyForRound(*r2, models.GranularitySecond))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected conflict for same key")
	}

	// other platform
	r3 := round("jetx", "2.50", base)
	if ok, _ := s.InsertRound(ctx, r3, models.KeyForRound(*r3, models.GranularitySecond)); !ok {
		t.Error("expected insert for other platform")
	}

	n, _ := s.CountRounds(ctx, "aviator")
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	by, _ := s.CountRoundsByPlatform(ctx)
	if by["aviator"] != 1 || by["jetx"] != 1 {
		t.Errorf("counts by platform = %v", by)
	}
}

func TestMemoryStorage_WindowAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, m := range []string{"1.20", "3.00", "1.20"} {
		r := round("aviator", m, base.Add(time.Duration(i)*time.Minute))
		if _, err := s.InsertRound(ctx, r, models.KeyForRound(*r, models.GranularitySecond)); err != nil {
			t.Fatal(err)
		}
	}

	found, _ := s.HasRoundInWindow(ctx, "aviator", decimal.RequireFromString("3"), base.Add(time.Minute), base.Add(time.Minute+time.Second))
	if !found {
		t.Error("expected 3.00 in window")
	}
	found, _ = s.HasRoundInWindow(ctx, "aviator", decimal.RequireFromString("3"), base, base.Add(time.Minute))
	if found {
		t.Error("window end must be exclusive")
	}

	recent, _ := s.GetRecentRounds(ctx, "aviator", 2)
	if len(recent) != 2 || !recent[0].RoundTime.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("recent = %+v", recent)
	}

	page, _ := s.GetRoundsPage(ctx, "aviator", RoundCursor{}, 2)
	if len(page) != 2 || !page[0].RoundTime.Equal(base) {
		t.Fatalf("first page = %+v", page)
	}
	page, _ = s.GetRoundsPage(ctx, "aviator", CursorAfter(page[1]), 2)
	if len(page) != 1 || !page[0].RoundTime.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("second page = %+v", page)
	}
}

func TestMemoryStorage_DeleteFreesKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	r := round("aviator", "2.00", base)
	key := models.KeyForRound(*r, models.GranularitySecond)
	_, _ = s.InsertRound(ctx, r, key)

	n, err := s.DeleteRounds(ctx, []int64{r.ID, 999})
	if err != nil || n != 1 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	again := round("aviator", "2.00", base)
	if ok, _ := s.InsertRound(ctx, again, key); !ok {
		t.Error("expected key to be free after delete")
	}
}

func TestMemoryStorage_AdvisoryHourUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	now := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	hour := models.HourBucket(now, time.UTC)

	errAdv := &models.Advisory{
		Platform: "aviator", PredictionType: models.PredictionError,
		AnalysisData: json.RawMessage(`{"status":"error"}`),
		HourBucket:   hour, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if ok, _ := s.InsertAdvisory(ctx, errAdv); !ok {
		t.Fatal("error placeholder must insert")
	}
	if ok, _ := s.InsertAdvisory(ctx, errAdv); !ok {
		t.Fatal("error placeholders are not unique per hour")
	}
	if has, _ := s.HasValidAdvisory(ctx, "aviator", hour, hour.Add(time.Hour)); has {
		t.Fatal("error placeholder must not count as valid")
	}

	valid := &models.Advisory{
		Platform: "aviator", PredictionType: models.PredictionNormal, Confidence: 0.3,
		AnalysisData: json.RawMessage(`{"status":"ok"}`),
		HourBucket:   hour, CreatedAt: now, ExpiresAt: now.Add(time.Hour), IsActive: true,
	}
	if ok, _ := s.InsertAdvisory(ctx, valid); !ok {
		t.Fatal("valid advisory must insert")
	}
	dup := *valid
	if ok, _ := s.InsertAdvisory(ctx, &dup); ok {
		t.Fatal("second valid advisory in the same hour must conflict")
	}

	active, _ := s.GetActiveAdvisories(ctx, "aviator", now.Add(time.Minute), 10)
	if len(active) != 1 || active[0].ID != valid.ID {
		t.Fatalf("active = %+v", active)
	}
	active, _ = s.GetActiveAdvisories(ctx, "aviator", now.Add(time.Hour), 10)
	if len(active) != 0 {
		t.Fatalf("expired advisory returned: %+v", active)
	}
}

func TestOpen_MemoryDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "memory"}}
	stores, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer stores.Close()
	if stores.Rounds == nil || stores.Advisories == nil {
		t.Fatalf("stores = %+v", stores)
	}

	cache, err := OpenSeenCache(&config.RedisConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.(NopSeenCache); !ok {
		t.Errorf("cache = %T, want NopSeenCache", cache)
	}
}
