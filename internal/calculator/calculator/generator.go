package calculator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"
)

type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeNoData        Outcome = "no_data"
	OutcomeErrorRecorded Outcome = "error_recorded"
)

const defaultMaxConfidence = 0.94

// Result describes one Generate call. Advisory is nil when nothing was stored.
type Result struct {
	Platform string           `json:"platform"`
	Outcome  Outcome          `json:"outcome"`
	Advisory *models.Advisory `json:"advisory,omitempty"`
	Features *Features        `json:"features,omitempty"`
}

// Generator turns recent round history into at most one valid advisory per platform per hour.
type Generator struct {
	rounds     storage.RoundStorage
	advisories storage.AdvisoryStorage
	cfg        config.SignalsConfig
	loc        *time.Location
	low, high  decimal.Decimal
	now        func() time.Time
}

func NewGenerator(rounds storage.RoundStorage, advisories storage.AdvisoryStorage, cfg config.SignalsConfig) (*Generator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConfidence <= 0 || cfg.MaxConfidence >= config.MaxConfidenceCeiling {
		cfg.MaxConfidence = defaultMaxConfidence
	}
	return &Generator{
		rounds:     rounds,
		advisories: advisories,
		cfg:        cfg,
		loc:        loc,
		low:        decimal.NewFromFloat(cfg.LowThreshold),
		high:       decimal.NewFromFloat(cfg.HighThreshold),
		now:        time.Now,
	}, nil
}

// analysisData is stored as the advisory's analysis_data payload.
type analysisData struct {
	Status            string    `json:"status"`
	Error             string    `json:"error,omitempty"`
	Features          *Features `json:"features,omitempty"`
	LowThreshold      float64   `json:"low_threshold"`
	HighThreshold     float64   `json:"high_threshold"`
	DecisionThreshold float64   `json:"decision_threshold,omitempty"`
}

// Generate reads history, dedups against the current hour bucket and stores an advisory.
// Store failures are returned wrapping storage.ErrStoreUnavailable.
func (g *Generator) Generate(ctx context.Context, platform string) (Result, error) {
	res := Result{Platform: platform}
	now := g.now()
	hour := models.HourBucket(now, g.loc)
	log := slog.With("platform", platform, "hour_bucket", hour.Format(time.RFC3339))

	rounds, err := g.rounds.GetRecentRounds(ctx, platform, g.cfg.HistorySize)
	if err != nil {
		return res, fmt.Errorf("load history for %s: %w", platform, err)
	}
	if len(rounds) == 0 {
		log.Info("No rounds, skipping advisory")
		res.Outcome = OutcomeNoData
		return res, nil
	}

	exists, err := g.advisories.HasValidAdvisory(ctx, platform, hour, hour.Add(time.Hour))
	if err != nil {
		return res, fmt.Errorf("check hourly advisory for %s: %w", platform, err)
	}
	if exists {
		log.Debug("Advisory already exists for this hour")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	if len(rounds) < g.cfg.MinRounds {
		return g.recordError(ctx, res, now, hour, fmt.Sprintf("insufficient history: %d of %d rounds", len(rounds), g.cfg.MinRounds))
	}

	f := ComputeFeatures(rounds, now, g.low, g.high)
	res.Features = &f
	conf := Confidence(f, g.cfg.MaxConfidence)

	a := &models.Advisory{
		Platform:       platform,
		PredictionType: models.PredictionNormal,
		Confidence:     conf,
		SuggestedRange: g.cfg.NormalRange,
		HourBucket:     hour,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.cfg.TTL),
		IsActive:       true,
	}
	if conf >= g.cfg.DecisionThreshold {
		a.PredictionType = models.PredictionWaitHigh
		a.SuggestedRange = g.cfg.HighRange
	}
	a.Reason = reason(f, g.cfg.HighThreshold)
	a.AnalysisData, err = json.Marshal(analysisData{
		Status:            models.AnalysisStatusOK,
		Features:          &f,
		LowThreshold:      g.cfg.LowThreshold,
		HighThreshold:     g.cfg.HighThreshold,
		DecisionThreshold: g.cfg.DecisionThreshold,
	})
	if err != nil {
		return res, fmt.Errorf("encode analysis data: %w", err)
	}

	inserted, err := g.advisories.InsertAdvisory(ctx, a)
	if err != nil {
		return res, fmt.Errorf("store advisory for %s: %w", platform, err)
	}
	if !inserted {
		// another instance won the hour
		log.Debug("Advisory insert lost to a concurrent writer")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	log.Info("Advisory created", "type", a.PredictionType, "confidence", a.Confidence, "low_streak", f.LowStreak, "minutes_since_high", f.MinutesSinceHigh)
	res.Outcome = OutcomeCreated
	res.Advisory = a
	return res, nil
}

// recordError stores an inactive placeholder that does not count against the hourly limit.
func (g *Generator) recordError(ctx context.Context, res Result, now, hour time.Time, msg string) (Result, error) {
	data, err := json.Marshal(analysisData{
		Status:        models.AnalysisStatusError,
		Error:         msg,
		LowThreshold:  g.cfg.LowThreshold,
		HighThreshold: g.cfg.HighThreshold,
	})
	if err != nil {
		return res, fmt.Errorf("encode analysis data: %w", err)
	}
	a := &models.Advisory{
		Platform:       res.Platform,
		PredictionType: models.PredictionError,
		Reason:         msg,
		AnalysisData:   data,
		HourBucket:     hour,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.cfg.TTL),
		IsActive:       false,
	}
	if _, err := g.advisories.InsertAdvisory(ctx, a); err != nil {
		return res, fmt.Errorf("store error advisory for %s: %w", res.Platform, err)
	}
	slog.Warn("Recorded error advisory", "platform", res.Platform, "reason", msg)
	res.Outcome = OutcomeErrorRecorded
	res.Advisory = a
	return res, nil
}

func reason(f Features, high float64) string {
	gap := fmt.Sprintf("%.0f min since last %.2fx+", f.MinutesSinceHigh, high)
	if !f.HighSeen {
		gap = fmt.Sprintf("no %.2fx+ in the last %d rounds (%.0f min)", high, f.Rounds, f.MinutesSinceHigh)
	}
	return fmt.Sprintf("%d low rounds in a row, %s, avg %.2fx", f.LowStreak, gap, f.AvgMultiplier)
}
