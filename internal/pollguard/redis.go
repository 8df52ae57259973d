package pollguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lastPollPrefix  = "poll:last:"
	pollCountPrefix = "poll:count:"
)

// RedisStore implements Store using Redis. Keys are TTL-bounded so
// abandoned device codes clean themselves up.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed poll tracker.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Observe(ctx context.Context, deviceCode string, now time.Time, window time.Duration) (time.Time, int64, error) {
	lastKey := lastPollPrefix + deviceCode
	countKey := pollCountPrefix + deviceCode

	// Read-then-write is good enough here: two racing polls for one
	// device code both being counted errs on the side of slow_down.
	prevRaw, err := s.client.Get(ctx, lastKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return time.Time{}, 0, fmt.Errorf("reading last poll: %w", err)
	}

	var last time.Time
	if prevRaw != "" {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, prevRaw); parseErr == nil {
			last = parsed
		}
	}

	pipe := s.client.Pipeline()
	count := pipe.Incr(ctx, countKey)
	pipe.Expire(ctx, countKey, window)
	pipe.Set(ctx, lastKey, now.Format(time.RFC3339Nano), 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return time.Time{}, 0, fmt.Errorf("recording poll: %w", err)
	}

	return last, count.Val(), nil
}

func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
