package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore tracks recently ingested image hashes so the same photo is not
// run through the pipeline twice within the configured TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// MarkSeen records an image hash with a TTL after a successful ingestion.
func (s *RedisStore) MarkSeen(ctx context.Context, hash string, ttl time.Duration) error {
	key := fmt.Sprintf("seen:%s", hash)
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// WasSeen reports whether the image hash was ingested within the TTL.
func (s *RedisStore) WasSeen(ctx context.Context, hash string) (bool, error) {
	key := fmt.Sprintf("seen:%s", hash)
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}
