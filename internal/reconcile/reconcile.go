// Package reconcile removes rounds that became duplicates after the dedup
// granularity changed or before the unique index existed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"
)

// ErrDeleteFailed is returned when at least one delete chunk failed. The
// report still describes everything that was done.
var ErrDeleteFailed = errors.New("delete chunk failed")

type Options struct {
	PageSize  int
	ChunkSize int
	DryRun    bool // report duplicates without deleting them
}

// Report counts Duplicates as attempted deletions and Deleted as confirmed ones.
type Report struct {
	Platform     string        `json:"platform"`
	Granularity  string        `json:"granularity"`
	DryRun       bool          `json:"dry_run"`
	Scanned      int           `json:"scanned"`
	Kept         int           `json:"kept"`
	Duplicates   int           `json:"duplicates"`
	Deleted      int64         `json:"deleted"`
	FailedChunks int           `json:"failed_chunks"`
	Duration     time.Duration `json:"duration_ns"`
}

type Reconciler struct {
	store storage.RoundStorage
	opts  Options
}

func New(store storage.RoundStorage, opts Options) *Reconciler {
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100
	}
	return &Reconciler{store: store, opts: opts}
}

// Reconcile walks the platform's rounds oldest-first and keeps the earliest
// round of every dedup key at granularity g. Running it twice with the same g
// deletes nothing the second time.
func (r *Reconciler) Reconcile(ctx context.Context, platform string, g models.Granularity) (Report, error) {
	start := time.Now()
	rep := Report{Platform: platform, Granularity: g.String(), DryRun: r.opts.DryRun}
	log := slog.With("platform", platform, "granularity", g.String(), "dry_run", r.opts.DryRun)

	var (
		cursor  storage.RoundCursor
		bucket  time.Time
		seen    = make(map[string]struct{})
		pending = make([]int64, 0, r.opts.ChunkSize)
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if !r.opts.DryRun {
			n, err := r.store.DeleteRounds(ctx, pending)
			if err != nil {
				rep.FailedChunks++
				log.Error("Failed to delete duplicate chunk", "ids", len(pending), "first_id", pending[0], "error", err)
			} else {
				rep.Deleted += n
			}
		}
		pending = pending[:0]
	}

	for {
		page, err := r.store.GetRoundsPage(ctx, platform, cursor, r.opts.PageSize)
		if err != nil {
			flush()
			rep.Duration = time.Since(start)
			return rep, fmt.Errorf("scan %s after id %d: %w", platform, cursor.ID, err)
		}
		if len(page) == 0 {
			break
		}

		for _, round := range page {
			rep.Scanned++
			key := models.KeyForRound(round, g)
			// rows arrive in time order, so earlier buckets never come back
			if !key.Bucket.Equal(bucket) {
				bucket = key.Bucket
				clear(seen)
			}
			k := key.String()
			if _, dup := seen[k]; dup {
				rep.Duplicates++
				pending = append(pending, round.ID)
				if len(pending) >= r.opts.ChunkSize {
					flush()
				}
				continue
			}
			seen[k] = struct{}{}
			rep.Kept++
		}

		cursor = storage.CursorAfter(page[len(page)-1])
		if len(page) < r.opts.PageSize {
			break
		}
	}
	flush()
	rep.Duration = time.Since(start)

	log.Info("Reconciliation finished",
		"scanned", rep.Scanned,
		"kept", rep.Kept,
		"duplicates", rep.Duplicates,
		"deleted", rep.Deleted,
		"failed_chunks", rep.FailedChunks,
		"duration", rep.Duration)

	if rep.FailedChunks > 0 {
		return rep, fmt.Errorf("%w: %d chunks for %s", ErrDeleteFailed, rep.FailedChunks, platform)
	}
	return rep, nil
}
