package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/warrennet/warren/request"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type requestRegisteredEntry struct {
	name string
	hook RequestRegistered
}

type requestStartedEntry struct {
	name string
	hook RequestStarted
}

type requestModifiedEntry struct {
	name string
	hook RequestModified
}

type requestRestartedEntry struct {
	name string
	hook RequestRestarted
}

type requestFinishedEntry struct {
	name string
	hook RequestFinished
}

type requestRemovedEntry struct {
	name string
	hook RequestRemoved
}

type checkpointCompletedEntry struct {
	name string
	hook CheckpointCompleted
}

type recordResumedEntry struct {
	name string
	hook RecordResumed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	requestRegistered   []requestRegisteredEntry
	requestStarted      []requestStartedEntry
	requestModified     []requestModifiedEntry
	requestRestarted    []requestRestartedEntry
	requestFinished     []requestFinishedEntry
	requestRemoved      []requestRemovedEntry
	checkpointCompleted []checkpointCompletedEntry
	recordResumed       []recordResumedEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RequestRegistered); ok {
		r.requestRegistered = append(r.requestRegistered, requestRegisteredEntry{name, h})
	}
	if h, ok := e.(RequestStarted); ok {
		r.requestStarted = append(r.requestStarted, requestStartedEntry{name, h})
	}
	if h, ok := e.(RequestModified); ok {
		r.requestModified = append(r.requestModified, requestModifiedEntry{name, h})
	}
	if h, ok := e.(RequestRestarted); ok {
		r.requestRestarted = append(r.requestRestarted, requestRestartedEntry{name, h})
	}
	if h, ok := e.(RequestFinished); ok {
		r.requestFinished = append(r.requestFinished, requestFinishedEntry{name, h})
	}
	if h, ok := e.(RequestRemoved); ok {
		r.requestRemoved = append(r.requestRemoved, requestRemovedEntry{name, h})
	}
	if h, ok := e.(CheckpointCompleted); ok {
		r.checkpointCompleted = append(r.checkpointCompleted, checkpointCompletedEntry{name, h})
	}
	if h, ok := e.(RecordResumed); ok {
		r.recordResumed = append(r.recordResumed, recordResumedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Request event emitters
// ──────────────────────────────────────────────────

// EmitRequestRegistered notifies all extensions that implement RequestRegistered.
func (r *Registry) EmitRequestRegistered(ctx context.Context, rec *request.Record) {
	for _, e := range r.requestRegistered {
		if err := e.hook.OnRequestRegistered(ctx, rec); err != nil {
			r.logHookError("OnRequestRegistered", e.name, err)
		}
	}
}

// EmitRequestStarted notifies all extensions that implement RequestStarted.
func (r *Registry) EmitRequestStarted(ctx context.Context, rec *request.Record) {
	for _, e := range r.requestStarted {
		if err := e.hook.OnRequestStarted(ctx, rec); err != nil {
			r.logHookError("OnRequestStarted", e.name, err)
		}
	}
}

// EmitRequestModified notifies all extensions that implement RequestModified.
func (r *Registry) EmitRequestModified(ctx context.Context, rec *request.Record) {
	for _, e := range r.requestModified {
		if err := e.hook.OnRequestModified(ctx, rec); err != nil {
			r.logHookError("OnRequestModified", e.name, err)
		}
	}
}

// EmitRequestRestarted notifies all extensions that implement RequestRestarted.
func (r *Registry) EmitRequestRestarted(ctx context.Context, rec *request.Record) {
	for _, e := range r.requestRestarted {
		if err := e.hook.OnRequestRestarted(ctx, rec); err != nil {
			r.logHookError("OnRequestRestarted", e.name, err)
		}
	}
}

// EmitRequestFinished notifies all extensions that implement RequestFinished.
func (r *Registry) EmitRequestFinished(ctx context.Context, rec *request.Record, succeeded bool, reason string) {
	for _, e := range r.requestFinished {
		if err := e.hook.OnRequestFinished(ctx, rec, succeeded, reason); err != nil {
			r.logHookError("OnRequestFinished", e.name, err)
		}
	}
}

// EmitRequestRemoved notifies all extensions that implement RequestRemoved.
func (r *Registry) EmitRequestRemoved(ctx context.Context, id request.Identity) {
	for _, e := range r.requestRemoved {
		if err := e.hook.OnRequestRemoved(ctx, id); err != nil {
			r.logHookError("OnRequestRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Persistence event emitters
// ──────────────────────────────────────────────────

// EmitCheckpointCompleted notifies all extensions that implement CheckpointCompleted.
func (r *Registry) EmitCheckpointCompleted(ctx context.Context, records int, took time.Duration) {
	for _, e := range r.checkpointCompleted {
		if err := e.hook.OnCheckpointCompleted(ctx, records, took); err != nil {
			r.logHookError("OnCheckpointCompleted", e.name, err)
		}
	}
}

// EmitRecordResumed notifies all extensions that implement RecordResumed.
func (r *Registry) EmitRecordResumed(ctx context.Context, rec *request.Record) {
	for _, e := range r.recordResumed {
		if err := e.hook.OnRecordResumed(ctx, rec); err != nil {
			r.logHookError("OnRecordResumed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
