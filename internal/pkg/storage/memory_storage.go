package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

var (
	_ RoundStorage    = (*MemoryStorage)(nil)
	_ AdvisoryStorage = (*MemoryStorage)(nil)
)

// MemoryStorage keeps rounds and advisories in process memory with the same
// uniqueness rules as the PostgreSQL schema. Used for local runs and tests.
type MemoryStorage struct {
	mu         sync.RWMutex
	nextID     int64
	rounds     map[int64]models.Round
	roundKeys  map[string]int64 // dedup key -> round id
	keyOfRound map[int64]string

	nextAdvisoryID int64
	advisories     []models.Advisory
	validHours     map[string]int64 // platform|hour_bucket -> advisory id
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rounds:     make(map[int64]models.Round),
		roundKeys:  make(map[string]int64),
		keyOfRound: make(map[int64]string),
		validHours: make(map[string]int64),
	}
}

func (m *MemoryStorage) InsertRound(_ context.Context, r *models.Round, key models.DedupKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	if _, exists := m.roundKeys[k]; exists {
		return false, nil
	}
	m.nextID++
	r.ID = m.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.rounds[r.ID] = *r
	m.roundKeys[k] = r.ID
	m.keyOfRound[r.ID] = k
	return true, nil
}

func (m *MemoryStorage) HasRoundInWindow(_ context.Context, platform string, multiplier decimal.Decimal, from, to time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rounds {
		if r.Platform == platform && r.Multiplier.Equal(multiplier) &&
			!r.RoundTime.Before(from) && r.RoundTime.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) GetRecentRounds(_ context.Context, platform string, limit int) ([]models.Round, error) {
	out := m.sortedRounds(platform)
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStorage) GetRoundsPage(_ context.Context, platform string, after RoundCursor, limit int) ([]models.Round, error) {
	all := m.sortedRounds(platform)
	var out []models.Round
	for _, r := range all {
		if !after.RoundTime.IsZero() && !roundAfter(r, after) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStorage) DeleteRounds(_ context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := m.rounds[id]; !ok {
			continue
		}
		delete(m.rounds, id)
		if k, ok := m.keyOfRound[id]; ok {
			if m.roundKeys[k] == id {
				delete(m.roundKeys, k)
			}
			delete(m.keyOfRound, id)
		}
		n++
	}
	return n, nil
}

func (m *MemoryStorage) CountRounds(_ context.Context, platform string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.rounds {
		if r.Platform == platform {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStorage) CountRoundsByPlatform(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64)
	for _, r := range m.rounds {
		out[r.Platform]++
	}
	return out, nil
}

// AddRoundUnchecked stores r bypassing dedup keys, the way historical rows
// written under an older granularity look to the reconciliation jobs.
func (m *MemoryStorage) AddRoundUnchecked(r models.Round) models.Round {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	r.ID = m.nextID
	m.rounds[r.ID] = r
	return r
}

func (m *MemoryStorage) InsertAdvisory(_ context.Context, a *models.Advisory) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hourKey := a.Platform + "|" + a.HourBucket.UTC().Format(time.RFC3339)
	valid := !a.IsError()
	if valid {
		if _, exists := m.validHours[hourKey]; exists {
			return false, nil
		}
	}
	m.nextAdvisoryID++
	a.ID = m.nextAdvisoryID
	m.advisories = append(m.advisories, *a)
	if valid {
		m.validHours[hourKey] = a.ID
	}
	return true, nil
}

func (m *MemoryStorage) HasValidAdvisory(_ context.Context, platform string, from, to time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.advisories {
		a := &m.advisories[i]
		if a.Platform == platform && !a.IsError() &&
			!a.CreatedAt.Before(from) && a.CreatedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) GetActiveAdvisories(_ context.Context, platform string, now time.Time, limit int) ([]models.Advisory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Advisory
	for i := len(m.advisories) - 1; i >= 0; i-- {
		a := m.advisories[i]
		if a.Platform != platform || a.IsError() || !a.ActiveAt(now) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Advisories returns a copy of every stored advisory, oldest first.
func (m *MemoryStorage) Advisories() []models.Advisory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Advisory, len(m.advisories))
	copy(out, m.advisories)
	return out
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) sortedRounds(platform string) []models.Round {
	m.mu.RLock()
	out := make([]models.Round, 0, len(m.rounds))
	for _, r := range m.rounds {
		if r.Platform == platform {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundTime.Equal(out[j].RoundTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].RoundTime.Before(out[j].RoundTime)
	})
	return out
}

func roundAfter(r models.Round, c RoundCursor) bool {
	if r.RoundTime.Equal(c.RoundTime) {
		return r.ID > c.ID
	}
	return r.RoundTime.After(c.RoundTime)
}
