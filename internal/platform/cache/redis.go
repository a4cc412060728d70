package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/phrazzld/circles-api/internal/config"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/redis/go-redis/v9"
)

// Connect opens a Redis client for cfg and verifies it with PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	const op = "cache.Connect"

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// RedisScoreCache implements ScoreCache on a Redis client.
type RedisScoreCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ ScoreCache = (*RedisScoreCache)(nil)

// NewRedisScoreCache creates a cache whose entries expire after ttl.
// A zero ttl keeps entries until evicted.
func NewRedisScoreCache(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *RedisScoreCache {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisScoreCache{
		client: client,
		ttl:    ttl,
		logger: log.With(slog.String("component", "score_cache")),
	}
}

// Get implements ScoreCache.
func (c *RedisScoreCache) Get(ctx context.Context, key string) (int, bool, error) {
	const op = "cache.RedisScoreCache.Get"

	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	score, err := strconv.Atoi(val)
	if err != nil {
		log := logger.FromContextOrDefault(ctx, c.logger)
		log.Warn("discarding malformed cached score",
			slog.String("key", key),
			slog.String("value", val))
		return 0, false, nil
	}
	return score, true, nil
}

// Set implements ScoreCache.
func (c *RedisScoreCache) Set(ctx context.Context, key string, score int) error {
	const op = "cache.RedisScoreCache.Set"

	if err := c.client.Set(ctx, key, strconv.Itoa(score), c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
