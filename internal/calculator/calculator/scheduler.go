package calculator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/parserutil"
)

// AdvisoryGenerator is what the scheduler fans out per platform.
type AdvisoryGenerator interface {
	Generate(ctx context.Context, platform string) (Result, error)
}

// PlatformResult is one platform's line in a run report.
type PlatformResult struct {
	Platform       string        `json:"platform"`
	OK             bool          `json:"ok"`
	Outcome        Outcome       `json:"outcome,omitempty"`
	AdvisoryID     int64         `json:"advisory_id,omitempty"`
	PredictionType string        `json:"prediction_type,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

type Report struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Results    []PlatformResult `json:"results"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
}

// AllSucceeded reports whether no platform failed.
func (r Report) AllSucceeded() bool { return r.Failed == 0 }

// Scheduler runs the generator for every configured platform.
type Scheduler struct {
	gen        AdvisoryGenerator
	platforms  []string
	runTimeout time.Duration
	cadence    time.Duration

	mu   sync.RWMutex
	last *Report
}

func NewScheduler(gen AdvisoryGenerator, cfg config.SignalsConfig) *Scheduler {
	return &Scheduler{
		gen:        gen,
		platforms:  uniquePlatforms(cfg.Platforms),
		runTimeout: cfg.RunTimeout,
		cadence:    cfg.Cadence,
	}
}

// uniquePlatforms lower-cases names and keeps the first occurrence of each, so
// every platform owns exactly one result slot.
func uniquePlatforms(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// RunAll generates for all platforms concurrently and waits for every one to settle.
// A failing or panicking platform is reported without affecting the others.
func (s *Scheduler) RunAll(ctx context.Context) Report {
	rep := Report{
		RunID:     ulid.Make().String(),
		StartedAt: time.Now(),
		Results:   make([]PlatformResult, len(s.platforms)),
	}
	index := make(map[string]int, len(s.platforms))
	for i, p := range s.platforms {
		index[p] = i
		rep.Results[i] = PlatformResult{Platform: p}
	}
	log := slog.With("run_id", rep.RunID)
	log.Info("Signal run started", "platforms", s.platforms)

	runCtx, cancel := parserutil.CreateCycleContext(ctx, s.runTimeout)
	defer cancel()

	// each task writes only its own slot
	parserutil.RunTasks(runCtx, s.platforms, func(ctx context.Context, platform string) error {
		start := time.Now()
		res, err := s.gen.Generate(ctx, platform)
		pr := &rep.Results[index[platform]]
		pr.Duration = time.Since(start)
		if err != nil {
			return err
		}
		pr.OK = true
		pr.Outcome = res.Outcome
		if res.Advisory != nil {
			pr.AdvisoryID = res.Advisory.ID
			pr.PredictionType = string(res.Advisory.PredictionType)
			pr.Confidence = res.Advisory.Confidence
		}
		return nil
	}, parserutil.RunOptions{
		WaitForCompletion: true,
		OnError: func(platform string, err error) {
			log.Error("Signal generation failed", "platform", platform, "error", err)
			pr := &rep.Results[index[platform]]
			pr.OK = false
			pr.Error = err.Error()
		},
	})

	for _, r := range rep.Results {
		if r.OK {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}
	rep.FinishedAt = time.Now()
	log.Info("Signal run finished", "succeeded", rep.Succeeded, "failed", rep.Failed, "duration", rep.FinishedAt.Sub(rep.StartedAt))

	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	return rep
}

// LastReport returns the most recent run, if any.
func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// Start runs RunAll every cadence until ctx is cancelled. The first run starts immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cadence <= 0 {
		s.cadence = time.Hour
	}
	slog.Info("Internal signal schedule started", "cadence", s.cadence)

	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	s.RunAll(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Internal signal schedule stopped")
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}
