package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/cart-engine/internal/obs"
)

// RedisStore keeps cart state as JSON values in Redis. Every write refreshes the TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a Redis backed store. A non-positive ttl stores keys without expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration, prefix string) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}
}

// Get unmarshals the JSON value stored under key into dst. It reports whether the key existed.
func (s *RedisStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("session: redis client not configured")
	}
	defer observe("redis", "get", time.Now())
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Put serialises value as JSON and stores it with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, key string, value any) error {
	if s == nil || s.client == nil {
		return errors.New("session: redis client not configured")
	}
	defer observe("redis", "put", time.Now())
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("session: redis client not configured")
	}
	return s.client.Ping(ctx).Err()
}

func observe(driver, op string, start time.Time) {
	if obs.CartStoreDuration != nil {
		obs.CartStoreDuration.WithLabelValues(driver, op).Observe(obs.DurationMillis(time.Since(start)))
	}
}
