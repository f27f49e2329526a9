package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chandrahoro/reading-service/internal/model"
)

// redisStore implements Store over a single go-redis client. Connectivity
// failures surface as model.ErrCacheUnavailable so callers can fall through
// to the repository.
type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int) (Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
	}
	return &redisStore{rdb: rdb}, nil
}

func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapRedisErr(err)
	}
	return v, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return wrapRedisErr(s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	return ok, wrapRedisErr(err)
}

func (s *redisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	return n, wrapRedisErr(err)
}

func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	ks, err := s.rdb.Keys(ctx, pattern).Result()
	return ks, wrapRedisErr(err)
}

func (s *redisStore) TTL(ctx context.Context, key string) (int64, error) {
	d, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return TTLMissing, wrapRedisErr(err)
	}
	// go-redis reports the Redis sentinels as negative durations.
	switch {
	case d == -2 || d == -2*time.Second:
		return TTLMissing, nil
	case d == -1 || d == -1*time.Second:
		return TTLNoExpiry, nil
	default:
		return int64(d / time.Second), nil
	}
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return n > 0, nil
}

func (s *redisStore) DBSize(ctx context.Context) (int64, error) {
	n, err := s.rdb.DBSize(ctx).Result()
	return n, wrapRedisErr(err)
}

func (s *redisStore) Info(ctx context.Context, section string) (string, error) {
	v, err := s.rdb.Info(ctx, section).Result()
	return v, wrapRedisErr(err)
}

func (s *redisStore) HealthPing(ctx context.Context) error {
	return wrapRedisErr(s.rdb.Ping(ctx).Err())
}

func (s *redisStore) Close() error { return s.rdb.Close() }
