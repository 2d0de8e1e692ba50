package storage

import (
	"fmt"
	"log/slog"

	"github.com/Vodeneev/crashwatch/internal/pkg/config"
)

// Stores is the set of stores a service works with. Close releases all of them.
type Stores struct {
	Rounds     RoundStorage
	Advisories AdvisoryStorage
	Close      func() error
}

// Open builds stores for the configured driver.
func Open(cfg *config.Config) (*Stores, error) {
	switch cfg.Storage.Driver {
	case "memory":
		slog.Warn("Using in-memory storage, data is lost on exit")
		m := NewMemoryStorage()
		return &Stores{Rounds: m, Advisories: m, Close: m.Close}, nil
	case "postgres", "":
		db, err := OpenPostgres(&cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Rounds:     NewPostgresRoundStorageFromDB(db),
			Advisories: NewPostgresAdvisoryStorageFromDB(db),
			Close:      db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// OpenSeenCache returns the Redis cache when an address is configured, a no-op cache otherwise.
func OpenSeenCache(cfg *config.RedisConfig) (SeenCache, error) {
	if cfg.Addr == "" {
		return NopSeenCache{}, nil
	}
	c, err := NewRedisSeenCache(cfg.Addr, cfg.Password, cfg.DB, cfg.TTL)
	if err != nil {
		return nil, err
	}
	slog.Info("Redis seen cache enabled", "addr", cfg.Addr, "ttl", cfg.TTL)
	return c, nil
}
