package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout = 3 * time.Second
	redisIOTimeout   = 2 * time.Second
	redisPingTimeout = 2 * time.Second
	redisPoolSize    = 4
)

// OpenRedis connects the redis storage backend and validates it via PING.
// The agent is a single client, so the pool stays small.
func OpenRedis(ctx context.Context, cfg StorageConfig) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("%w: redis addr is required", ErrConfig)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.RedisAddr,
		Password:        cfg.RedisPassword,
		DB:              cfg.RedisDB,
		DialTimeout:     redisDialTimeout,
		ReadTimeout:     redisIOTimeout,
		WriteTimeout:    redisIOTimeout,
		PoolSize:        redisPoolSize,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	if err := PingRedis(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func PingRedis(parent context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(parent, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
