package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"affittochiaro/cmd/internal/storage"
	"affittochiaro/cmd/security/seal"
)

// Store owns the storage backend: the KV used for credentials and the
// session record, plus whatever connection sits behind it.
type Store interface {
	KV() storage.KV
	// Ready reports whether the backend is reachable.
	Ready(ctx context.Context) error
	Close(ctx context.Context) error
}

type localStore struct{ kv storage.KV }

func (s localStore) KV() storage.KV { return s.kv }
func (localStore) Ready(context.Context) error { return nil }
func (localStore) Close(context.Context) error { return nil }

type redisStore struct {
	kv     *storage.RedisKV
	client *redis.Client
}

func (s redisStore) KV() storage.KV { return s.kv }
func (s redisStore) Ready(ctx context.Context) error { return PingRedis(ctx, s.client) }
func (s redisStore) Close(context.Context) error { return s.client.Close() }

type dbStore struct {
	kv   *storage.PostgresKV
	pool *pgxpool.Pool
}

func (s dbStore) KV() storage.KV { return s.kv }

func (s dbStore) Ready(ctx context.Context) error {
	return PingDB(ctx, s.pool, 2*time.Second)
}

// Close releases the pool; the KV does not own it.
func (s dbStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// newStore opens the configured backend.
func newStore(ctx context.Context, cfg StorageConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		log.Info().Str("backend", cfg.Backend).Msg("storage.open")
		return localStore{kv: storage.NewMemoryKV()}, nil

	case BackendFile:
		var opts []storage.FileOption
		if cfg.Passphrase != "" {
			params, err := seal.ParamsFromEnv()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
			s, err := seal.New(cfg.Passphrase, params)
			if err != nil {
				return nil, err
			}
			opts = append(opts, storage.WithSealer(s))
		}
		kv, err := storage.NewFileKV(cfg.Dir, opts...)
		if err != nil {
			return nil, err
		}
		log.Info().Str("backend", cfg.Backend).Str("dir", cfg.Dir).Bool("sealed", cfg.Passphrase != "").Msg("storage.open")
		return localStore{kv: kv}, nil

	case BackendRedis:
		client, err := OpenRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		kv, err := storage.NewRedisKV(client, storage.WithRedisTTL(cfg.RedisTTL))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		log.Info().Str("backend", cfg.Backend).Str("addr", cfg.RedisAddr).Msg("storage.open")
		return redisStore{kv: kv, client: client}, nil

	case BackendPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		var opts []storage.PostgresOption
		if cfg.DatabaseSchema != "" {
			opts = append(opts, storage.WithSchema(cfg.DatabaseSchema))
		}
		kv, err := storage.NewPostgresKV(pool, opts...)
		if err == nil {
			err = kv.EnsureSchema(ctx)
		}
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Str("backend", cfg.Backend).Msg("storage.open")
		return dbStore{kv: kv, pool: pool}, nil
	}
	return nil, fmt.Errorf("%w: storage backend %q", ErrConfig, cfg.Backend)
}
