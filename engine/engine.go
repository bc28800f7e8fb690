package engine

import "context"

// Op identifies the kind of work an engine instance performs.
type Op uint8

const (
	// OpFetch downloads content-addressed data.
	OpFetch Op = iota
	// OpInsert uploads content-addressed data.
	OpInsert
)

// Binding is the scheduling identity a client queue presents to the
// engine: one per (client, priority band) pair. The engine groups
// low-level requests under it for fairness and persistence decisions.
type Binding interface {
	// Persistent reports whether requests under this binding are
	// crash-persistent.
	Persistent() bool
	// Realtime reports which of the two priority pools this binding
	// schedules into.
	Realtime() bool
}

// Progress is a snapshot of an engine instance's progress accounting.
// True progress is computed by the engine, not by the lifecycle core.
type Progress struct {
	SuccessFraction     float64
	TotalBlocks         int64
	MinBlocks           int64
	FetchedBlocks       int64
	FailedBlocks        int64
	FatallyFailedBlocks int64
	// TotalFinalized reports whether TotalBlocks is final.
	TotalFinalized bool
}

// Callbacks is implemented by the lifecycle core and invoked by the
// engine. Finished is invoked exactly once per engine instance; the
// engine re-invokes nothing after a resume that it already reported
// before the restart.
type Callbacks interface {
	// Finished reports terminal success or failure. The reason string
	// is opaque to the lifecycle core.
	Finished(succeeded bool, reason string)
	// ProgressUpdated reports a progress change.
	ProgressUpdated(p Progress)
}

// Engine drives one request. Exactly one instance exists per lifecycle
// record and the record never substitutes a different instance.
type Engine interface {
	// Start begins execution. Idempotence is the caller's concern.
	Start(ctx context.Context) error

	// Cancel stops execution. Cancelling an engine that already
	// finished is a harmless no-op.
	Cancel(ctx context.Context)

	// CanRestart reports whether the request previously failed in a way
	// the engine can recover from.
	CanRestart() bool

	// Restart re-runs the request. disableFilterData bypasses content
	// sanitization filters on the retry.
	Restart(ctx context.Context, disableFilterData bool) error

	// SetPriority pushes a priority class change into the engine's
	// scheduler.
	SetPriority(ctx context.Context, priority int)

	// OnResume re-attaches process-local state after deserialization.
	// It must not re-invoke callbacks already delivered before the
	// restart.
	OnResume(ctx context.Context) error

	// FullyResumed reports whether OnResume recovered the original
	// transfer from stored data rather than restarting it.
	FullyResumed() bool

	// OnShutdown flushes in-flight state shortly before process exit.
	// Failures are reported, never fatal to shutdown.
	OnShutdown(ctx context.Context) error

	// Progress returns the engine's current progress accounting.
	Progress() Progress

	// FailureReason returns the engine-reported failure description, or
	// "" if none. The long form carries extra detail.
	FailureReason(long bool) string

	// HasSucceeded reports terminal success.
	HasSucceeded() bool
}

// Spec describes the work a new engine instance should perform.
type Spec struct {
	Op                Op
	Target            string
	Priority          int
	Realtime          bool
	DisableFilterData bool
}

// Factory creates engine instances. The node receives one at startup;
// the resume path uses it to re-acquire engine handles, which are
// process-local and never serialized.
type Factory interface {
	New(ctx context.Context, spec Spec, binding Binding, cb Callbacks) (Engine, error)
}
