// Package postgres implements store.RecordStore on PostgreSQL using
// pgx/v5, for deployments that keep node state in a shared database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/store"
)

// Compile-time interface check.
var _ store.RecordStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS warren_records (
	key        TEXT PRIMARY KEY,
	blob       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a PostgreSQL-backed RecordStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a store around an existing connection pool. The Store
// owns the pool and closes it on Close.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a connection pool for the given DSN.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("warren/postgres: connect: %w", err)
	}
	return New(pool, opts...), nil
}

// Migrate implements store.RecordStore.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("warren/postgres: migrate: %w", err)
	}
	return nil
}

// Ping implements store.RecordStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements store.RecordStore.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Put implements store.RecordStore.
func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warren_records (key, blob, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()`,
		key, blob,
	)
	if err != nil {
		return fmt.Errorf("warren/postgres: put %q: %w", key, err)
	}
	return nil
}

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT blob FROM warren_records WHERE key = $1`, key).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, warren.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("warren/postgres: get %q: %w", key, err)
	}
	return blob, nil
}

// Delete implements store.RecordStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM warren_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("warren/postgres: delete %q: %w", key, err)
	}
	return nil
}

// Keys implements store.RecordStore.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM warren_records`)
	if err != nil {
		return nil, fmt.Errorf("warren/postgres: keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("warren/postgres: keys scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warren/postgres: keys: %w", err)
	}
	return keys, nil
}
