package performance

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Poll cycle states.
const (
	StateIdle        = "idle"
	StateFetching    = "fetching"
	StateNormalizing = "normalizing"
	StateWriting     = "writing"
)

// PlatformStats is the per-platform view of poll cycles.
type PlatformStats struct {
	Platform string `json:"platform"`
	State    string `json:"state"`

	Cycles    int `json:"cycles"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	ConsecutiveFailures       int `json:"consecutive_failures"`
	ConsecutiveSourceFailures int `json:"consecutive_source_failures"`

	RowsParsed  int `json:"rows_parsed"`
	RowsDropped int `json:"rows_dropped"`

	RoundsInserted int `json:"rounds_inserted"`
	RoundsSkipped  int `json:"rounds_skipped"`
	RoundsFailed   int `json:"rounds_failed"`

	LastCycleID       string        `json:"last_cycle_id,omitempty"`
	LastCycleDuration time.Duration `json:"last_cycle_duration_ns"`
	LastError         string        `json:"last_error,omitempty"`
	LastErrorAt       time.Time     `json:"last_error_at,omitempty"`
	LastSuccessAt     time.Time     `json:"last_success_at,omitempty"`
}

// CycleResult is what one poll cycle reports back.
type CycleResult struct {
	CycleID     string
	Duration    time.Duration
	RowsParsed  int
	RowsDropped int
	Inserted    int
	Skipped     int
	Failed      int
	Err         error
	SourceDown  bool // Err is a source unavailability
}

// Tracker tracks poll cycle metrics per platform
type Tracker struct {
	mu        sync.RWMutex
	startedAt time.Time
	platforms map[string]*PlatformStats
}

var globalTracker = NewTracker()

// GetTracker returns the global performance tracker
func GetTracker() *Tracker {
	return globalTracker
}

func NewTracker() *Tracker {
	return &Tracker{
		startedAt: time.Now(),
		platforms: make(map[string]*PlatformStats),
	}
}

// Reset resets all metrics
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startedAt = time.Now()
	t.platforms = make(map[string]*PlatformStats)
}

func (t *Tracker) statsLocked(platform string) *PlatformStats {
	s, ok := t.platforms[platform]
	if !ok {
		s = &PlatformStats{Platform: platform, State: StateIdle}
		t.platforms[platform] = s
	}
	return s
}

// SetState records the current stage of a platform's poll loop.
func (t *Tracker) SetState(platform, state string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statsLocked(platform).State = state
}

// RecordCycle folds one finished cycle into the platform's counters and
// returns the updated stats.
func (t *Tracker) RecordCycle(platform string, res CycleResult) PlatformStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.statsLocked(platform)
	s.Cycles++
	s.LastCycleID = res.CycleID
	s.LastCycleDuration = res.Duration
	s.RowsParsed += res.RowsParsed
	s.RowsDropped += res.RowsDropped
	s.RoundsInserted += res.Inserted
	s.RoundsSkipped += res.Skipped
	s.RoundsFailed += res.Failed

	if res.Err != nil {
		s.Failed++
		s.ConsecutiveFailures++
		if res.SourceDown {
			s.ConsecutiveSourceFailures++
		} else {
			s.ConsecutiveSourceFailures = 0
		}
		s.LastError = res.Err.Error()
		s.LastErrorAt = time.Now()
	} else {
		s.Succeeded++
		s.ConsecutiveFailures = 0
		s.ConsecutiveSourceFailures = 0
		s.LastSuccessAt = time.Now()
	}
	return *s
}

// Stats returns a copy of one platform's counters.
func (t *Tracker) Stats(platform string) (PlatformStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.platforms[platform]
	if !ok {
		return PlatformStats{}, false
	}
	return *s, true
}

// Snapshot is the JSON shape served at /metrics.
type Snapshot struct {
	StartedAt time.Time       `json:"started_at"`
	Uptime    string          `json:"uptime"`
	Platforms []PlatformStats `json:"platforms"`
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Snapshot{
		StartedAt: t.startedAt,
		Uptime:    time.Since(t.startedAt).Round(time.Second).String(),
		Platforms: make([]PlatformStats, 0, len(t.platforms)),
	}
	for _, s := range t.platforms {
		out.Platforms = append(out.Platforms, *s)
	}
	sort.Slice(out.Platforms, func(i, j int) bool {
		return out.Platforms[i].Platform < out.Platforms[j].Platform
	})
	return out
}

// PrintSummary logs a per-platform summary
func (t *Tracker) PrintSummary() {
	snap := t.Snapshot()
	if len(snap.Platforms) == 0 {
		slog.Info("No poll cycles recorded yet")
		return
	}

	slog.Info("POLL SUMMARY", "uptime", snap.Uptime)
	for _, s := range snap.Platforms {
		successRate := 0.0
		if s.Cycles > 0 {
			successRate = float64(s.Succeeded) / float64(s.Cycles) * 100
		}
		slog.Info("Platform",
			"platform", s.Platform,
			"cycles", s.Cycles,
			"success_rate", successRate,
			"rows_parsed", s.RowsParsed,
			"rows_dropped", s.RowsDropped,
			"inserted", s.RoundsInserted,
			"skipped", s.RoundsSkipped,
			"failed", s.RoundsFailed,
			"last_error", s.LastError)
	}
}
