package normalize

import (
	"testing"
	"time"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

func TestResolve_Yesterday(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	got := Resolve(models.Clock{Hour: 23, Minute: 58, Second: 10}, now, time.UTC)
	want := time.Date(2023, 12, 31, 23, 58, 10, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolve_Today(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		clock models.Clock
		want  time.Time
	}{
		{models.Clock{Hour: 11, Minute: 59, Second: 59}, time.Date(2024, 1, 1, 11, 59, 59, 0, time.UTC)},
		{models.Clock{Hour: 12}, now},
		{models.Clock{Hour: 12, Second: 1}, time.Date(2023, 12, 31, 12, 0, 1, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := Resolve(tt.clock, now, time.UTC); !got.Equal(tt.want) {
			t.Errorf("Resolve(%s) = %v, want %v", tt.clock, got, tt.want)
		}
	}
}

func TestResolve_PlatformZone(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	// 02:00 UTC is 23:00 the previous day in BRT
	now := time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC)
	got := Resolve(models.Clock{Hour: 22, Minute: 30}, now, loc)
	want := time.Date(2024, 6, 1, 22, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestReconstruct_OrderingPreserved(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := models.Clock{Hour: 11, Minute: 30, Second: 15}

	newest := Reconstruct(c, 0, now, time.UTC)
	older := Reconstruct(c, 1, now, time.UTC)
	if !newest.After(older) {
		t.Fatalf("order 0 (%v) must be after order 1 (%v)", newest, older)
	}
	second := time.Date(2024, 1, 1, 11, 30, 15, 0, time.UTC)
	for _, ts := range []time.Time{newest, older, Reconstruct(c, 5000, now, time.UTC)} {
		if !ts.Truncate(time.Second).Equal(second) {
			t.Errorf("%v left its second", ts)
		}
	}
}

func TestSubSecondOffset(t *testing.T) {
	if got := SubSecondOffset(0); got != 999*time.Millisecond {
		t.Errorf("offset(0) = %v", got)
	}
	if got := SubSecondOffset(2000); got != 0 {
		t.Errorf("offset(2000) = %v", got)
	}
}
