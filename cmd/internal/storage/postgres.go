package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgTable = "affitto_kv"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresKV stores values in a single upsert table:
//
//	affitto_kv(key text primary key, value bytea not null, updated_at timestamptz not null)
//
// The pool is owned by the caller and is never closed here.
type PostgresKV struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures a PostgresKV.
type PostgresOption func(*PostgresKV) error

// WithSchema sets the schema holding the table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(p *PostgresKV) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("storage: invalid schema identifier %q", schema)
		}
		p.schema = schema
		return nil
	}
}

func NewPostgresKV(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresKV, error) {
	p := &PostgresKV{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.pool == nil {
		return nil, fmt.Errorf("storage: nil pool")
	}
	return p, nil
}

func (p *PostgresKV) table() string {
	return pgx.Identifier{p.schema, pgTable}.Sanitize()
}

// EnsureSchema creates the table if it does not exist.
func (p *PostgresKV) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+p.table()+` (
		key        text PRIMARY KEY,
		value      bytea NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresKV) Load(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM `+p.table()+` WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: pg load %q: %w", key, err)
	}
	return value, nil
}

func (p *PostgresKV) Save(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO `+p.table()+` (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storage: pg save %q: %w", key, err)
	}
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM `+p.table()+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("storage: pg delete %q: %w", key, err)
	}
	return nil
}
