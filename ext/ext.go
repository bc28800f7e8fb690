// Package ext defines the extension system for Warren.
// Extensions are notified of request lifecycle events (registered,
// finished, restarted, etc.) and can react to them — logging, metrics,
// tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/warrennet/warren/request"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Request lifecycle hooks
// ──────────────────────────────────────────────────

// RequestRegistered is called after a request is registered on a
// client queue.
type RequestRegistered interface {
	OnRequestRegistered(ctx context.Context, rec *request.Record) error
}

// RequestStarted is called when a request's engine begins running.
type RequestStarted interface {
	OnRequestStarted(ctx context.Context, rec *request.Record) error
}

// RequestModified is called after a mutable field of a request
// actually changes. No-op modifications do not fire it.
type RequestModified interface {
	OnRequestModified(ctx context.Context, rec *request.Record) error
}

// RequestRestarted is called after a finished or failed request is
// restarted with a fresh engine.
type RequestRestarted interface {
	OnRequestRestarted(ctx context.Context, rec *request.Record) error
}

// RequestFinished is called when a request reaches a terminal state.
type RequestFinished interface {
	OnRequestFinished(ctx context.Context, rec *request.Record, succeeded bool, reason string) error
}

// RequestRemoved is called after a request is removed from its client
// queue.
type RequestRemoved interface {
	OnRequestRemoved(ctx context.Context, id request.Identity) error
}

// ──────────────────────────────────────────────────
// Persistence hooks
// ──────────────────────────────────────────────────

// CheckpointCompleted is called after each durable checkpoint pass.
type CheckpointCompleted interface {
	OnCheckpointCompleted(ctx context.Context, records int, took time.Duration) error
}

// RecordResumed is called for each record successfully rebuilt from
// durable storage at startup.
type RecordResumed interface {
	OnRecordResumed(ctx context.Context, rec *request.Record) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
