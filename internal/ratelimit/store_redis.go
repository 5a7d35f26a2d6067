package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gatehouse:ratelimit:"

// RedisStore keeps limiter entries in Redis hashes so multiple replicas can
// share one view of a client's budget. The key TTL set on write is purely a
// memory bound; window rollover is still decided by the Limiter, exactly as
// with MemoryStore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, identifier, action string) (*Entry, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+key(identifier, action)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt rate limit count: %w", err)
	}
	startMs, err := strconv.ParseInt(fields["window_start_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt rate limit window start: %w", err)
	}

	return &Entry{
		Identifier:  identifier,
		Action:      action,
		Count:       count,
		WindowStart: time.UnixMilli(startMs),
	}, nil
}

func (s *RedisStore) Set(ctx context.Context, entry Entry, retention time.Duration) error {
	k := redisKeyPrefix + key(entry.Identifier, entry.Action)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, map[string]interface{}{
		"count":           entry.Count,
		"window_start_ms": entry.WindowStart.UnixMilli(),
	})
	if retention > 0 {
		pipe.Expire(ctx, k, retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write rate limit entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier, action string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key(identifier, action)).Err(); err != nil {
		return fmt.Errorf("failed to delete rate limit entry: %w", err)
	}
	return nil
}

// DeleteOlderThan is a no-op for Redis; key TTLs already bound memory there.
func (s *RedisStore) DeleteOlderThan(context.Context, time.Time) (int, error) {
	return 0, nil
}
