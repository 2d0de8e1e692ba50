package models

import (
	"encoding/json"
	"time"
)

type PredictionType string

const (
	PredictionNormal   PredictionType = "NORMAL"
	PredictionWaitHigh PredictionType = "WAIT_HIGH"
	PredictionError    PredictionType = "ERROR"
)

// Analysis status values stored under analysis_data.status.
const (
	AnalysisStatusOK    = "ok"
	AnalysisStatusError = "error"
)

// Advisory is a time-bounded recommendation derived from recent round history.
type Advisory struct {
	ID             int64           `json:"id"`
	Platform       string          `json:"platform"`
	PredictionType PredictionType  `json:"prediction_type"`
	Confidence     float64         `json:"confidence"`
	SuggestedRange string          `json:"suggested_range"`
	Reason         string          `json:"reason"`
	AnalysisData   json.RawMessage `json:"analysis_data"`
	HourBucket     time.Time       `json:"hour_bucket"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	IsActive       bool            `json:"is_active"`
}

// Status reads the status marker from AnalysisData. Rows without one count as valid.
func (a *Advisory) Status() string {
	if len(a.AnalysisData) == 0 {
		return ""
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(a.AnalysisData, &payload); err != nil {
		return ""
	}
	return payload.Status
}

// IsError reports whether the advisory is an error placeholder.
func (a *Advisory) IsError() bool {
	return a.Status() == AnalysisStatusError
}

func (a *Advisory) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// ActiveAt is IsActive with expiry applied.
func (a *Advisory) ActiveAt(now time.Time) bool {
	return a.IsActive && !a.IsExpired(now)
}

// HourBucket returns the start of the wall-clock hour containing t in loc.
func HourBucket(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
}
