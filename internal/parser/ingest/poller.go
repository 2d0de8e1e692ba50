package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Vodeneev/crashwatch/internal/parser/normalize"
	"github.com/Vodeneev/crashwatch/internal/parser/parsers"
	"github.com/Vodeneev/crashwatch/internal/pkg/alerts"
	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
	"github.com/Vodeneev/crashwatch/internal/pkg/parserutil"
	"github.com/Vodeneev/crashwatch/internal/pkg/performance"
)

// ReaderSource resolves the reader serving a platform.
type ReaderSource interface {
	For(platform string) (parsers.Reader, bool)
}

// Poller runs Fetch, Normalize and Write for every platform on a fixed delay.
type Poller struct {
	cfg       *config.PollerConfig
	platforms map[string]config.PlatformConfig
	readers   ReaderSource
	writer    *Writer
	tracker   *performance.Tracker
	alerter   alerts.Alerter
	now       func() time.Time
}

type Option func(*Poller)

func WithTracker(t *performance.Tracker) Option { return func(p *Poller) { p.tracker = t } }

func WithAlerter(a alerts.Alerter) Option { return func(p *Poller) { p.alerter = a } }

// WithClock overrides the wall clock used for time reconstruction.
func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

func NewPoller(cfg *config.PollerConfig, readers ReaderSource, writer *Writer, opts ...Option) *Poller {
	p := &Poller{
		cfg:       cfg,
		platforms: make(map[string]config.PlatformConfig, len(cfg.Platforms)),
		readers:   readers,
		writer:    writer,
		tracker:   performance.GetTracker(),
		alerter:   alerts.Nop{},
		now:       time.Now,
	}
	for _, pc := range cfg.Platforms {
		p.platforms[pc.Name] = pc
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run blocks until ctx is cancelled. Each platform loops in its own goroutine.
func (p *Poller) Run(ctx context.Context) {
	names := make([]string, 0, len(p.cfg.Platforms))
	for _, pc := range p.cfg.Platforms {
		names = append(names, pc.Name)
	}
	slog.Info("Poller started", "platforms", names, "interval", p.cfg.Interval, "granularity", p.writer.Granularity())

	parserutil.RunTasks(ctx, names, p.loop, parserutil.RunOptions{
		LogStart:          true,
		WaitForCompletion: true,
		OnError: func(name string, err error) {
			slog.Error("Platform loop stopped", "platform", name, "error", err)
		},
	})
	slog.Info("Poller stopped")
}

type alertState struct {
	alerted   bool
	downSince time.Time
}

func (p *Poller) loop(ctx context.Context, platform string) error {
	var st alertState
	for ctx.Err() == nil {
		p.step(ctx, platform, &st)
		if !parserutil.Sleep(ctx, p.cfg.Interval) {
			break
		}
	}
	return nil
}

// step runs one cycle, records it and raises or clears the source-down alert.
func (p *Poller) step(ctx context.Context, platform string, st *alertState) performance.CycleResult {
	res := p.RunCycle(ctx, platform)
	stats := p.tracker.RecordCycle(platform, res)

	switch {
	case res.Err == nil && st.alerted:
		downFor := p.now().Sub(st.downSince)
		if err := p.alerter.SourceRecovered(ctx, platform, downFor); err != nil {
			slog.Warn("Failed to send recovery alert", "platform", platform, "error", err)
		}
		st.alerted = false
	case res.SourceDown:
		if stats.ConsecutiveSourceFailures == 1 {
			st.downSince = p.now()
		}
		if !st.alerted && p.cfg.AlertAfterFailures > 0 && stats.ConsecutiveSourceFailures >= p.cfg.AlertAfterFailures {
			slog.Warn("Source down", "platform", platform, "consecutive_failures", stats.ConsecutiveSourceFailures)
			if err := p.alerter.SourceDown(ctx, platform, stats.ConsecutiveSourceFailures, res.Err); err != nil {
				slog.Warn("Failed to send source-down alert", "platform", platform, "error", err)
			}
			st.alerted = true
		}
	}
	return res
}

// RunCycle performs one Fetching, Normalizing, Writing pass for the platform.
func (p *Poller) RunCycle(ctx context.Context, platform string) (res performance.CycleResult) {
	res.CycleID = ulid.Make().String()
	start := time.Now()
	log := slog.With("platform", platform, "cycle_id", res.CycleID)

	defer func() {
		p.tracker.SetState(platform, performance.StateIdle)
		res.Duration = time.Since(start)
		if res.Err != nil {
			log.Error("Poll cycle failed", "error", res.Err, "duration", res.Duration)
			return
		}
		log.Info("Poll cycle finished",
			"rows", res.RowsParsed+res.RowsDropped,
			"dropped", res.RowsDropped,
			"inserted", res.Inserted,
			"skipped", res.Skipped,
			"duration", res.Duration)
	}()

	pc, ok := p.platforms[platform]
	reader, hasReader := p.readers.For(platform)
	if !ok || !hasReader {
		res.Err = fmt.Errorf("%w: %s", parsers.ErrUnknownPlatform, platform)
		return res
	}
	loc, err := pc.Location()
	if err != nil {
		res.Err = err
		return res
	}

	p.tracker.SetState(platform, performance.StateFetching)
	fetchCtx, cancel := parserutil.CreateCycleContext(ctx, p.cfg.FetchTimeout)
	rows, err := reader.FetchLatestRows(fetchCtx, platform)
	cancel()
	if err != nil {
		res.Err = fmt.Errorf("fetch: %w", err)
		res.SourceDown = errors.Is(err, parsers.ErrSourceUnavailable)
		return res
	}

	p.tracker.SetState(platform, performance.StateNormalizing)
	parsed, dropped := normalize.ParseBatch(platform, rows)
	res.RowsParsed, res.RowsDropped = len(parsed), dropped
	if dropped > 0 {
		log.Debug("Dropped unparseable rows", "dropped", dropped)
	}
	now := p.now()
	rounds := make([]models.Round, 0, len(parsed))
	for _, nr := range parsed {
		rounds = append(rounds, normalize.ToRound(nr, now, loc))
	}

	p.tracker.SetState(platform, performance.StateWriting)
	// shutdown must not abort a write that already started
	writeCtx, cancelWrite := parserutil.CreateCycleContext(context.WithoutCancel(ctx), p.cfg.WriteTimeout)
	batch := p.writer.WriteBatch(writeCtx, rounds)
	cancelWrite()

	res.Inserted, res.Skipped, res.Failed = batch.Inserted, batch.Skipped, batch.Failed
	if batch.Err != nil {
		res.Err = fmt.Errorf("write: %d of %d rounds failed: %w", batch.Failed, len(rounds), batch.Err)
	}
	return res
}
