package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// RedisConfig configures the Redis cursor backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string `yaml:"address"`

	Password string `yaml:"password"`
	Database int    `yaml:"database"`

	// Key is the cursor key; Prefix is prepended to it.
	Prefix string `yaml:"prefix"`
	Key    string `yaml:"key"`

	// TTL expires the cursor key (0 = keep forever)
	TTL time.Duration `yaml:"ttl"`

	// Timeout bounds each Redis operation
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "migrate:progress:",
		Key:     "cursor",
		Timeout: 5 * time.Second,
	}
}

// redisCmd is the subset of the Redis client the tracker uses.
type redisCmd interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisTracker stores the cursor under a single Redis key.
type RedisTracker struct {
	cfg    RedisConfig
	client redisCmd
	logger zerolog.Logger
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	t, err := newRedisTracker(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return t, nil
}

func newRedisTracker(ctx context.Context, client redisCmd, cfg RedisConfig, logger zerolog.Logger) (*RedisTracker, error) {
	if cfg.Key == "" {
		cfg.Key = "cursor"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	t := &RedisTracker{cfg: cfg, client: client, logger: logger}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, errors.CodeCheckpointFailed, "connect to redis %s", cfg.Address)
	}
	return t, nil
}

func (t *RedisTracker) key() string {
	return t.cfg.Prefix + t.cfg.Key
}

// Load implements Tracker.
func (t *RedisTracker) Load(ctx context.Context) int {
	return loadOrZero(ctx, t, t.Name(), t.logger)
}

func (t *RedisTracker) read(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	val, err := t.client.Get(ctx, t.key()).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, errNoCursor
		}
		return 0, errors.Wrapf(err, errors.CodeCheckpointFailed, "get %s", t.key())
	}
	return parseCursor(val)
}

// Save implements Tracker.
func (t *RedisTracker) Save(ctx context.Context, cursor int) error {
	s, err := formatCursor(cursor)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	if err := t.client.Set(ctx, t.key(), s, t.cfg.TTL).Err(); err != nil {
		return errors.Wrapf(err, errors.CodeCheckpointFailed, "set %s", t.key())
	}
	return nil
}

// Close releases the Redis connection pool.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

// Name implements Tracker.
func (t *RedisTracker) Name() string {
	return fmt.Sprintf("redis://%s/%s", t.cfg.Address, t.key())
}
