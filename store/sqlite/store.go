// Package sqlite implements store.RecordStore on a local SQLite file —
// the default durable backend for a single node. Records live in one
// table keyed by identity; the single-writer runner means contention is
// never an issue.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/store"
)

// Compile-time interface check.
var _ store.RecordStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key        TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a SQLite-backed RecordStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("warren/sqlite: open %q: %w", path, err)
	}
	// SQLite handles one writer at a time; don't let database/sql open
	// competing connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// New wraps an existing database handle. The caller owns its lifecycle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate implements store.RecordStore.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("warren/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping implements store.RecordStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements store.RecordStore.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put implements store.RecordStore.
func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		key, blob, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("warren/sqlite: put %q: %w", key, err)
	}
	return nil
}

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM records WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, warren.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("warren/sqlite: get %q: %w", key, err)
	}
	return blob, nil
}

// Delete implements store.RecordStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("warren/sqlite: delete %q: %w", key, err)
	}
	return nil
}

// Keys implements store.RecordStore.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM records`)
	if err != nil {
		return nil, fmt.Errorf("warren/sqlite: keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("warren/sqlite: keys scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warren/sqlite: keys: %w", err)
	}
	return keys, nil
}
