package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/cart-engine/internal/cart"
	"github.com/noah-isme/cart-engine/internal/catalog"
	"github.com/noah-isme/cart-engine/internal/config"
	"github.com/noah-isme/cart-engine/internal/events"
	"github.com/noah-isme/cart-engine/internal/health"
	"github.com/noah-isme/cart-engine/internal/lock"
	"github.com/noah-isme/cart-engine/internal/obs"
	"github.com/noah-isme/cart-engine/internal/pricing"
	"github.com/noah-isme/cart-engine/internal/ratelimit"
	"github.com/noah-isme/cart-engine/internal/session"
)

// SessionStore is a cart store that can also be probed by readiness checks.
type SessionStore interface {
	cart.Store
	health.Pinger
}

// Dependencies enumerates the services shared by the HTTP layer.
type Dependencies struct {
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Store       SessionStore
	Locker      cart.Locker
	Events      *events.Bus
	Models      *catalog.Registry
	Carts       *cart.Factory
	RateLimiter ratelimit.Allower
	Checks      map[string]health.Pinger
	TaskClient  *asynq.Client

	closers []func()
}

// Options controls how Build wires the dependencies.
type Options struct {
	Config *config.Config
	Logger *zerolog.Logger
	// SkipMigrations leaves the cart_sessions schema untouched.
	SkipMigrations bool
}

// Build connects to the configured backends and assembles the cart services.
func Build(ctx context.Context, opts Options) (*Dependencies, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	deps := &Dependencies{Checks: map[string]health.Pinger{}}

	if cfg.RedisURL != "" {
		rdb, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		deps.Redis = rdb
		deps.closers = append(deps.closers, func() { _ = rdb.Close() })
		deps.Checks["redis"] = health.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	switch cfg.SessionDriver {
	case config.DriverRedis:
		deps.Store = session.NewRedisStore(deps.Redis, cfg.SessionTTL, cfg.SessionPrefix)
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.DB = pool
		deps.closers = append(deps.closers, pool.Close)
		if cfg.DatabaseMigrate && !opts.SkipMigrations {
			if err := session.Migrate(cfg.DatabaseURL); err != nil {
				deps.Close()
				return nil, fmt.Errorf("migrate sessions: %w", err)
			}
		}
		store := session.NewPGStore(pool, cfg.SessionTTL)
		deps.Store = store
		if cfg.SessionPurgeEvery > 0 && cfg.SessionTTL > 0 {
			stop := StartPurger(store, cfg.SessionPurgeEvery, logger)
			deps.closers = append(deps.closers, stop)
		}
	default:
		deps.Store = session.NewMemoryStore()
	}
	deps.Checks["store"] = deps.Store

	if deps.Redis != nil {
		deps.Locker = lock.NewRedis(lock.RedisConfig{Client: deps.Redis, Prefix: cfg.SessionPrefix + "lock:"})
	} else {
		deps.Locker = lock.NewLocal()
	}

	notifiers := []events.Notifier{events.LogNotifier{Logger: logger}}
	if cfg.EventsQueueEnabled {
		client, err := NewTaskClient(cfg.RedisURL)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.TaskClient = client
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		notifiers = append(notifiers, events.QueueNotifier{Client: client, Queue: cfg.EventsQueueName})
	}
	deps.Events = events.NewBus(events.Config{
		Logger:    &logger,
		Meter:     Meter("github.com/noah-isme/cart-engine/internal/events"),
		Notifiers: notifiers,
	})

	var cache *catalog.Cache
	if deps.Redis != nil && cfg.ModelCacheTTL > 0 {
		cache = catalog.NewCache(deps.Redis, cfg.ModelCacheTTL)
	}
	deps.Models = catalog.NewRegistry(catalog.RegistryConfig{Cache: cache, Logger: &logger})
	if err := catalog.RegisterDefaults(deps.Models); err != nil {
		deps.Close()
		return nil, err
	}

	deps.Carts = cart.NewFactory(cart.FactoryConfig{
		Store:        deps.Store,
		Events:       deps.Events,
		Locker:       deps.Locker,
		Models:       deps.Models,
		Logger:       &logger,
		InstanceName: cfg.CartInstance,
		Config: cart.Config{
			Decimals:      cfg.CartDecimals,
			RoundMode:     pricing.ParseRoundMode(cfg.CartRoundMode),
			FormatNumbers: cfg.CartFormatNumbers,
		},
		LockTTL: cfg.LockTTL,
	})

	rl, err := NewRateLimiter(deps.Redis, cfg.RateLimitAlgorithm, cfg.SessionPrefix+"rl:")
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.RateLimiter = rl

	return deps, nil
}

// Close releases every connection opened by Build in reverse order.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// NewRedisClient parses url and instruments the client with OpenTelemetry.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis metrics: %w", err)
	}
	return rdb, nil
}

// NewTaskClient builds the asynq client that forwards cart events to workers.
func NewTaskClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task queue url: %w", err)
	}
	return asynq.NewClient(opt), nil
}

// NewPool opens a pgx pool traced through obs.PGXTracer.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "cart-engine"
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// NewLimiterStore wires a ulule rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// NewRateLimiter picks the limiter backend. Without Redis counters stay in memory.
func NewRateLimiter(rdb *redis.Client, algorithm, prefix string) (ratelimit.Allower, error) {
	if rdb == nil {
		return ratelimit.NewInMemory(prefix), nil
	}
	if algorithm == "fixed" {
		store, err := NewLimiterStore(rdb, prefix)
		if err != nil {
			return nil, fmt.Errorf("rate limit store: %w", err)
		}
		return ratelimit.FixedWindow{Store: store}, nil
	}
	return ratelimit.SlidingWindow{Client: rdb, Prefix: prefix}, nil
}

// Purger removes expired sessions.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StartPurger runs p every interval until the returned stop function is called.
func StartPurger(p Purger, interval time.Duration, logger zerolog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				spanCtx, span := Tracer("github.com/noah-isme/cart-engine/internal/app").Start(ctx, "session.purge")
				removed, err := p.PurgeExpired(spanCtx)
				span.End()
				if err != nil {
					logger.Warn().Err(err).Msg("session_purge_failed")
					continue
				}
				if removed > 0 {
					logger.Debug().Int64("removed", removed).Msg("session_purge")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Tracer returns the default OpenTelemetry tracer for instrumentation hooks.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns the default OpenTelemetry meter for instrumentation hooks.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
