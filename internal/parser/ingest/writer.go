// Package ingest persists normalized rounds and drives the per-platform poll loop.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"
)

type Outcome int

const (
	Inserted Outcome = iota
	SkippedDuplicate
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case SkippedDuplicate:
		return "skipped_duplicate"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Writer decides whether a round is new at its granularity and stores it if so.
type Writer struct {
	store       storage.RoundStorage
	cache       storage.SeenCache
	granularity models.Granularity
}

func NewWriter(store storage.RoundStorage, cache storage.SeenCache, g models.Granularity) *Writer {
	if cache == nil {
		cache = storage.NopSeenCache{}
	}
	if g <= 0 {
		g = models.GranularitySecond
	}
	return &Writer{store: store, cache: cache, granularity: g}
}

func (w *Writer) Granularity() models.Granularity { return w.granularity }

// Write stores r unless a round with the same key is already persisted.
// Conflicts are SkippedDuplicate. Failed errors wrap storage.ErrStoreUnavailable.
func (w *Writer) Write(ctx context.Context, r models.Round) (Outcome, error) {
	key := models.KeyForRound(r, w.granularity)
	keyStr := key.String()
	r.Platform = key.Platform

	if seen, err := w.cache.Seen(ctx, keyStr); err != nil {
		slog.Warn("Seen cache lookup failed", "key", keyStr, "error", err)
	} else if seen {
		slog.Debug("Duplicate round (cache)", "key", keyStr)
		return SkippedDuplicate, nil
	}

	exists, err := w.store.HasRoundInWindow(ctx, r.Platform, r.Multiplier, key.Bucket, key.WindowEnd())
	if err != nil {
		return Failed, fmt.Errorf("check duplicate %s: %w", keyStr, err)
	}
	if exists {
		slog.Debug("Duplicate round", "key", keyStr)
		w.mark(ctx, keyStr)
		return SkippedDuplicate, nil
	}

	inserted, err := w.store.InsertRound(ctx, &r, key)
	if err != nil {
		return Failed, fmt.Errorf("insert %s: %w", keyStr, err)
	}
	w.mark(ctx, keyStr)
	if !inserted {
		slog.Debug("Duplicate round (conflict)", "key", keyStr)
		return SkippedDuplicate, nil
	}
	return Inserted, nil
}

// BatchResult counts outcomes of one WriteBatch call. Err is the first failure.
type BatchResult struct {
	Inserted int
	Skipped  int
	Failed   int
	Err      error
}

// WriteBatch writes rounds oldest-first. A failed round does not stop the rest.
func (w *Writer) WriteBatch(ctx context.Context, rounds []models.Round) BatchResult {
	ordered := make([]models.Round, len(rounds))
	copy(ordered, rounds)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RoundTime.Before(ordered[j].RoundTime)
	})

	var res BatchResult
	for _, r := range ordered {
		outcome, err := w.Write(ctx, r)
		switch outcome {
		case Inserted:
			res.Inserted++
		case SkippedDuplicate:
			res.Skipped++
		case Failed:
			res.Failed++
			if res.Err == nil {
				res.Err = err
			}
		}
	}
	return res
}

func (w *Writer) mark(ctx context.Context, key string) {
	if err := w.cache.Mark(ctx, key); err != nil {
		slog.Warn("Seen cache update failed", "key", key, "error", err)
	}
}
