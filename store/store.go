// Package store defines the durable blob storage interface for
// crash-persistent request records. The persist package writes
// checksum-framed record envelopes through it; backends are Memory,
// SQLite, Redis, and Postgres.
package store

import "context"

// RecordStore persists opaque record blobs keyed by request identity.
// The single-writer durable job runner is the only writer; backends do
// not need their own write serialization beyond basic safety.
type RecordStore interface {
	// Put stores or replaces the blob under key.
	Put(ctx context.Context, key string, blob []byte) error

	// Get returns the blob under key, or warren.ErrRequestNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob under key. Deleting an absent key is a
	// no-op.
	Delete(ctx context.Context, key string) error

	// Keys lists all stored record keys in unspecified order.
	Keys(ctx context.Context) ([]string, error)

	// Migrate prepares the backend schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
