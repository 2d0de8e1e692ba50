package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAdvisoryStatus(t *testing.T) {
	tests := []struct {
		data    string
		status  string
		isError bool
	}{
		{`{"status":"ok","low_streak":3}`, "ok", false},
		{`{"status":"error","error":"insufficient history"}`, "error", true},
		{`{"low_streak":3}`, "", false},
		{``, "", false},
		{`not json`, "", false},
	}
	for _, tt := range tests {
		a := &Advisory{AnalysisData: json.RawMessage(tt.data)}
		if got := a.Status(); got != tt.status {
			t.Errorf("Status(%q) = %q, want %q", tt.data, got, tt.status)
		}
		if got := a.IsError(); got != tt.isError {
			t.Errorf("IsError(%q) = %v, want %v", tt.data, got, tt.isError)
		}
	}
}

func TestAdvisoryActiveAt(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	a := &Advisory{CreatedAt: created, ExpiresAt: created.Add(time.Hour), IsActive: true}

	if !a.ActiveAt(created.Add(59 * time.Minute)) {
		t.Errorf("advisory should be active before expiry")
	}
	if a.ActiveAt(created.Add(time.Hour)) {
		t.Errorf("advisory should be stale at expires_at")
	}
}

func TestHourBucket(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC) // 15:45 IST

	got := HourBucket(at, loc)
	want := time.Date(2024, 3, 1, 15, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("HourBucket = %v, want %v", got, want)
	}
	if utc := HourBucket(at, nil); !utc.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("HourBucket(nil loc) = %v", utc)
	}
}
