package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDBPool opens the pool behind the postgres storage backend. The agent
// only reads and writes a handful of rows, so the pool stays small; the KV
// table is created by PostgresKV.EnsureSchema, not here.
func NewDBPool(ctx context.Context, cfg StorageConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: database url: %v", ErrConfig, err)
	}

	pcfg.MaxConns = cfg.DBMaxConns
	if pcfg.MaxConns <= 0 {
		pcfg.MaxConns = 4
	}
	pcfg.MinConns = max(cfg.DBMinConns, 0)
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pcfg.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres storage: %w", err)
	}
	return pool, nil
}

// PingDB backs the /readyz probe for the postgres backend.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return pool.Ping(ctx)
}
