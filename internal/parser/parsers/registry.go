package parsers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
)

// Factory builds a reader serving every platform of cfg that uses the driver.
type Factory func(cfg *config.PollerConfig, platforms []config.PlatformConfig) (Reader, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, f Factory) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		panic("parsers: empty name in Register")
	}
	if f == nil {
		panic("parsers: nil factory in Register for " + n)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[n]; exists {
		panic("parsers: duplicate registration for " + n)
	}
	registry[n] = f
}

func FactoryByName(name string) (Factory, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[n]
	return f, ok
}

func AvailableNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReaderSet owns one reader per driver and routes platforms to them.
type ReaderSet struct {
	byPlatform map[string]Reader
	readers    []Reader
}

// OpenReaderSet groups the configured platforms by driver and builds a reader for each group.
func OpenReaderSet(cfg *config.PollerConfig) (*ReaderSet, error) {
	groups := make(map[string][]config.PlatformConfig)
	var drivers []string
	for _, p := range cfg.Platforms {
		d := strings.ToLower(strings.TrimSpace(p.Driver))
		if _, ok := groups[d]; !ok {
			drivers = append(drivers, d)
		}
		groups[d] = append(groups[d], p)
	}

	set := &ReaderSet{byPlatform: make(map[string]Reader)}
	for _, d := range drivers {
		f, ok := FactoryByName(d)
		if !ok {
			_ = set.Close()
			return nil, fmt.Errorf("unknown source driver %q (available: %v)", d, AvailableNames())
		}
		r, err := f(cfg, groups[d])
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("failed to create %s reader: %w", d, err)
		}
		set.readers = append(set.readers, r)
		for _, p := range groups[d] {
			set.byPlatform[p.Name] = r
		}
	}
	return set, nil
}

func (s *ReaderSet) For(platform string) (Reader, bool) {
	r, ok := s.byPlatform[platform]
	return r, ok
}

func (s *ReaderSet) Close() error {
	var firstErr error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
