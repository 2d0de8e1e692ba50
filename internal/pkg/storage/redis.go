package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "crashwatch:seen:"

var _ SeenCache = (*RedisSeenCache)(nil)

// RedisSeenCache lets several poller instances skip the database lookup for
// rounds another instance already persisted.
type RedisSeenCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSeenCache(addr, password string, db int, ttl time.Duration) (*RedisSeenCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSeenCache{client: client, ttl: ttl}, nil
}

func (r *RedisSeenCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, seenKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisSeenCache) Mark(ctx context.Context, key string) error {
	if err := r.client.Set(ctx, seenKeyPrefix+key, 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes connection with Redis
func (r *RedisSeenCache) Close() error {
	return r.client.Close()
}
