package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when a lock is used without its backend.
var ErrNotConfigured = errors.New("lock: backend not configured")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Redis serialises cart mutations across processes with a SET NX token per key.
type Redis struct {
	client  *redis.Client
	retry   time.Duration
	prefix  string
	release time.Duration
}

// RedisConfig configures a Redis lock.
type RedisConfig struct {
	Client       *redis.Client
	RetryBackoff time.Duration
	Prefix       string
}

// NewRedis constructs a Redis lock.
func NewRedis(cfg RedisConfig) *Redis {
	retry := cfg.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &Redis{client: cfg.Client, retry: retry, prefix: cfg.Prefix, release: time.Second}
}

// WithLock runs fn while holding key. The lock is released even when fn fails, and
// waiting stops with ctx.Err() once ctx is done. A non-positive ttl defaults to 30s.
func (l *Redis) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key = l.prefix + key
	token := uuid.NewString()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if acquired {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	defer l.unlock(key, token)
	return fn(ctx)
}

func (l *Redis) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.release)
	defer cancel()
	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.client.Del(ctx, key).Err()
		}
	}
}
