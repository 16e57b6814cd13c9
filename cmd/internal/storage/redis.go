package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores values as plain Redis strings under prefix+key.
type RedisKV struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisKV.
type RedisOption func(*RedisKV)

// WithRedisPrefix prepends prefix to every key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisKV) { r.prefix = prefix }
}

// WithRedisTTL expires values ttl after their last Save. Zero keeps them.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *RedisKV) { r.ttl = ttl }
}

// NewRedisKV wraps client. The client is owned by the caller.
func NewRedisKV(client redis.UniversalClient, opts ...RedisOption) (*RedisKV, error) {
	if client == nil {
		return nil, fmt.Errorf("storage: redis client is nil")
	}
	r := &RedisKV{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.ttl < 0 {
		return nil, fmt.Errorf("storage: negative redis ttl")
	}
	return r, nil
}

func (r *RedisKV) Load(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: redis get %q: %w", key, err)
	}
	return b, nil
}

func (r *RedisKV) Save(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("storage: redis set %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("storage: redis del %q: %w", key, err)
	}
	return nil
}
