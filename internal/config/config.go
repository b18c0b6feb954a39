package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Session drivers accepted by SESSION_DRIVER.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string

	CartInstance      string
	CartDecimals      int
	CartRoundMode     string
	CartFormatNumbers bool

	SessionDriver   string
	SessionTTL      time.Duration
	SessionPrefix   string
	RedisURL        string
	DatabaseURL     string
	DatabaseMigrate bool

	LockTTL            time.Duration
	ModelCacheTTL      time.Duration
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitAlgorithm string
	SessionPurgeEvery  time.Duration

	EventsQueueEnabled bool
	EventsQueueName    string
	WorkerConcurrency  int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CartInstance:       valueOrDefault(strings.TrimSpace(k.String("CART_INSTANCE")), "shopping"),
		CartDecimals:       parseInt(k.String("CART_DECIMALS"), 2),
		CartRoundMode:      strings.ToLower(valueOrDefault(strings.TrimSpace(k.String("CART_ROUND_MODE")), "down")),
		CartFormatNumbers:  parseBool(k.String("CART_FORMAT_NUMBERS")),
		SessionDriver:      strings.ToLower(valueOrDefault(strings.TrimSpace(k.String("SESSION_DRIVER")), DriverMemory)),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "720h"),
		SessionPrefix:      valueOrDefault(k.String("SESSION_PREFIX"), "cart:"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		DatabaseMigrate:    parseBoolDefault(k.String("DATABASE_MIGRATE"), true),
		LockTTL:            parseDuration(k.String("LOCK_TTL"), "5s"),
		ModelCacheTTL:      parseDuration(k.String("MODEL_CACHE_TTL"), "10m"),
		RateLimitMax:       parseInt(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitAlgorithm: strings.ToLower(valueOrDefault(strings.TrimSpace(k.String("RATE_LIMIT_ALGORITHM")), "sliding")),
		SessionPurgeEvery:  parseDuration(k.String("SESSION_PURGE_INTERVAL"), "10m"),
		EventsQueueEnabled: parseBool(k.String("EVENTS_QUEUE_ENABLED")),
		EventsQueueName:    valueOrDefault(strings.TrimSpace(k.String("EVENTS_QUEUE_NAME")), "cart-events"),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionDriver {
	case DriverMemory:
	case DriverRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when SESSION_DRIVER=redis")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when SESSION_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported SESSION_DRIVER %q", c.SessionDriver)
	}
	if c.CartRoundMode != "up" && c.CartRoundMode != "down" {
		return fmt.Errorf("CART_ROUND_MODE must be up or down, got %q", c.CartRoundMode)
	}
	if c.EventsQueueEnabled && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when EVENTS_QUEUE_ENABLED=true")
	}
	if c.RateLimitAlgorithm != "sliding" && c.RateLimitAlgorithm != "fixed" {
		return fmt.Errorf("RATE_LIMIT_ALGORITHM must be sliding or fixed, got %q", c.RateLimitAlgorithm)
	}
	if c.CartDecimals < 0 {
		return errors.New("CART_DECIMALS must not be negative")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
