// Package redis implements store.RecordStore on Redis, for nodes whose
// durable queue should survive local disk loss. Record blobs are stored
// as values under a key prefix, with a Set tracking live record keys.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/store"
)

// Compile-time interface check.
var _ store.RecordStore = (*Store)(nil)

const (
	recordPrefix = "warren:record:"
	recordSet    = "warren:records"
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a Redis-backed RecordStore. The caller owns the Redis client
// lifecycle; Close never closes it.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a Redis-backed store around an existing client.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordKey(key string) string { return recordPrefix + key }

// Put implements store.RecordStore.
func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(key), blob, 0)
	pipe.SAdd(ctx, recordSet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warren/redis: put %q: %w", key, err)
	}
	return nil
}

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.client.Get(ctx, recordKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, warren.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("warren/redis: get %q: %w", key, err)
	}
	return blob, nil
}

// Delete implements store.RecordStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recordKey(key))
	pipe.SRem(ctx, recordSet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warren/redis: delete %q: %w", key, err)
	}
	return nil
}

// Keys implements store.RecordStore.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, recordSet).Result()
	if err != nil {
		return nil, fmt.Errorf("warren/redis: keys: %w", err)
	}
	return keys, nil
}

// Migrate is a no-op for the Redis store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping implements store.RecordStore.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("warren/redis: ping: %w", err)
	}
	return nil
}

// Close implements store.RecordStore. The caller owns the Redis client,
// so this is a no-op.
func (s *Store) Close() error { return nil }
