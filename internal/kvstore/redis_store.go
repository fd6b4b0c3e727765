package kvstore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guardian-service/internal/client"
	"guardian-service/internal/util"
)

// RedisStore persists values in Redis without a server-side expiration;
// freshness is decided by the TTL cache layer from the stamped write time.
type RedisStore struct {
	client *client.RedisClient
}

func NewRedisStore(c *client.RedisClient) *RedisStore {
	return &RedisStore{client: c}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	val, err := s.client.Get(ctx, key)
	if err != nil {
		if !client.IsNotFound(err, key) {
			util.Error("Failed to read key from local store",
				zap.String("key", key),
				zap.Error(err))
		}
		return "", false
	}
	return val, true
}

func (s *RedisStore) Set(ctx context.Context, key, value string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Set(ctx, key, value, 0); err != nil {
		util.Error("Failed to write key to local store",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, key); err != nil {
		util.Error("Failed to delete key from local store",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (s *RedisStore) GetAllKeys(ctx context.Context, prefix string) []string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	keys, err := s.client.Scan(ctx, prefix+"*", 100)
	if err != nil {
		util.Error("Failed to scan local store keys",
			zap.String("prefix", prefix),
			zap.Error(err))
		return nil
	}
	return keys
}
