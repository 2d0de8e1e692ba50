package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"
)

type mapCache struct {
	keys map[string]bool
	err  error
}

func (c *mapCache) Seen(_ context.Context, key string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.keys[key], nil
}

func (c *mapCache) Mark(_ context.Context, key string) error {
	if c.err != nil {
		return c.err
	}
	c.keys[key] = true
	return nil
}

func (c *mapCache) Close() error { return nil }

// brokenStore fails every call the writer makes.
type brokenStore struct{ storage.RoundStorage }

func (brokenStore) HasRoundInWindow(context.Context, string, decimal.Decimal, time.Time, time.Time) (bool, error) {
	return false, fmt.Errorf("check: %w", storage.ErrStoreUnavailable)
}

// lateConflictStore sees no round in the window but loses the insert, the way a
// concurrent writer that committed first makes it.
type lateConflictStore struct {
	storage.RoundStorage
	inserts int
}

func (lateConflictStore) HasRoundInWindow(context.Context, string, decimal.Decimal, time.Time, time.Time) (bool, error) {
	return false, nil
}

func (s *lateConflictStore) InsertRound(context.Context, *models.Round, models.DedupKey) (bool, error) {
	s.inserts++
	return false, nil
}

func testRound(mult string, t time.Time) models.Round {
	return models.Round{Platform: "Aviator", Multiplier: decimal.RequireFromString(mult), RoundTime: t}
}

func TestWriter_DedupIdempotence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	w := NewWriter(store, nil, models.GranularitySecond)
	r := testRound("2.50", time.Date(2024, 1, 1, 10, 0, 0, 999_000_000, time.UTC))

	if got, err := w.Write(ctx, r); err != nil || got != Inserted {
		t.Fatalf("first write = %v, %v", got, err)
	}
	if got, err := w.Write(ctx, r); err != nil || got != SkippedDuplicate {
		t.Fatalf("second write = %v, %v", got, err)
	}
	n, _ := store.CountRounds(ctx, "aviator")
	if n != 1 {
		t.Fatalf("persisted %d rounds, want 1", n)
	}
}

func TestWriter_GranularityMonotonicity(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var rounds []models.Round
	for i := 0; i < 90; i++ {
		rounds = append(rounds, testRound("1.50", base.Add(time.Duration(i)*1500*time.Millisecond)))
	}

	counts := map[models.Granularity]int{}
	for _, g := range []models.Granularity{models.GranularitySecond, models.GranularityMinute} {
		store := storage.NewMemoryStorage()
		res := NewWriter(store, nil, g).WriteBatch(ctx, rounds)
		if res.Failed != 0 {
			t.Fatalf("%s: failures %+v", g, res)
		}
		counts[g] = res.Inserted
	}
	if counts[models.GranularityMinute] > counts[models.GranularitySecond] {
		t.Fatalf("coarser granularity persisted more rounds: %v", counts)
	}
	if counts[models.GranularityMinute] != 3 {
		t.Errorf("minute granularity inserted %d, want 3", counts[models.GranularityMinute])
	}
}

func TestWriter_CacheHitSkips(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{keys: map[string]bool{}}
	store := storage.NewMemoryStorage()
	w := NewWriter(store, cache, models.GranularitySecond)
	r := testRound("3.00", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))

	cache.keys[models.KeyForRound(r, models.GranularitySecond).String()] = true
	if got, _ := w.Write(ctx, r); got != SkippedDuplicate {
		t.Fatalf("cached key outcome = %v", got)
	}
	if n, _ := store.CountRounds(ctx, "aviator"); n != 0 {
		t.Fatal("cached key must not reach the store")
	}
}

func TestWriter_CacheErrorsIgnored(t *testing.T) {
	ctx := context.Background()
	w := NewWriter(storage.NewMemoryStorage(), &mapCache{err: errors.New("redis down")}, models.GranularitySecond)
	if got, err := w.Write(ctx, testRound("3.00", time.Now())); err != nil || got != Inserted {
		t.Fatalf("write = %v, %v", got, err)
	}
}

func TestWriter_StoreFailure(t *testing.T) {
	w := NewWriter(brokenStore{}, nil, models.GranularitySecond)
	got, err := w.Write(context.Background(), testRound("3.00", time.Now()))
	if got != Failed || !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Fatalf("write = %v, %v", got, err)
	}

	res := w.WriteBatch(context.Background(), []models.Round{testRound("1.1", time.Now()), testRound("1.2", time.Now())})
	if res.Failed != 2 || !errors.Is(res.Err, storage.ErrStoreUnavailable) {
		t.Fatalf("batch = %+v", res)
	}
}

func TestWriteBatch_OldestFirst(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	w := NewWriter(store, nil, models.GranularitySecond)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	// newest first, as the page shows them
	res := w.WriteBatch(ctx, []models.Round{
		testRound("4.00", base.Add(2*time.Second)),
		testRound("2.00", base.Add(time.Second)),
		testRound("1.00", base),
	})
	if res.Inserted != 3 {
		t.Fatalf("batch = %+v", res)
	}
	page, _ := store.GetRoundsPage(ctx, "aviator", storage.RoundCursor{}, 10)
	for i := 1; i < len(page); i++ {
		if page[i].ID < page[i-1].ID {
			t.Fatalf("rows not inserted oldest-first: %+v", page)
		}
	}
}

func TestWriter_InsertConflictIsDuplicate(t *testing.T) {
	store := &lateConflictStore{}
	cache := &mapCache{keys: map[string]bool{}}
	w := NewWriter(store, cache, models.GranularitySecond)
	r := testRound("1.85", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))

	got, err := w.Write(context.Background(), r)
	if err != nil || got != SkippedDuplicate {
		t.Fatalf("Write() = %v, %v, want %v, nil", got, err, SkippedDuplicate)
	}
	if store.inserts != 1 {
		t.Errorf("inserts = %d, want 1", store.inserts)
	}
	if key := models.KeyForRound(r, models.GranularitySecond).String(); !cache.keys[key] {
		t.Errorf("conflicting key %q not marked as seen", key)
	}
}

func TestWriter_ConcurrentWritersInsertOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	w := NewWriter(store, nil, models.GranularityMinute)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	const writers = 50
	outcomes := make([]Outcome, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every reading lands in the same minute bucket
			outcomes[i], errs[i] = w.Write(ctx, testRound("3.10", base.Add(time.Duration(i)*time.Second)))
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := range outcomes {
		if errs[i] != nil || outcomes[i] == Failed {
			t.Fatalf("writer %d: %v, %v", i, outcomes[i], errs[i])
		}
		if outcomes[i] == Inserted {
			inserted++
		}
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
	if n, err := store.CountRounds(ctx, "aviator"); err != nil || n != 1 {
		t.Errorf("CountRounds() = %d, %v, want 1", n, err)
	}
}
