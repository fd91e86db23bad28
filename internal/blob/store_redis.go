package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"campuscard/pkg/platform/sentinel"
)

const redisKeyPrefix = "card:blob:"

// RedisStore keeps card images in Redis. Suitable for clustered deployments
// that want shared, fast card serving without an object-store dependency;
// values carry no TTL because expiry is a read-time property of the record,
// not of the blob.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed blob store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, 0).Err(); err != nil {
		return "", Transient(fmt.Errorf("redis set: %w", err))
	}
	return key, nil
}

func (s *RedisStore) URL(_ context.Context, ref string) (string, error) {
	// Redis objects are not URL-addressable; callers stream bytes instead.
	return "", fmt.Errorf("redis store has no URLs: %w", sentinel.ErrUnavailable)
}

func (s *RedisStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+ref).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("blob %s: %w", ref, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, Transient(fmt.Errorf("redis get: %w", err))
	}
	return data, nil
}

func (s *RedisStore) Exists(ctx context.Context, ref string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+ref).Result()
	if err != nil {
		return false, Transient(fmt.Errorf("redis exists: %w", err))
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, ref string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+ref).Err(); err != nil {
		return Transient(fmt.Errorf("redis del: %w", err))
	}
	return nil
}
