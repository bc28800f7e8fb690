package request

import (
	"context"
	"log/slog"

	"github.com/warrennet/warren/engine"
)

// Event categorizes a status-change notification.
type Event uint8

const (
	// EventModified means the client token and/or priority changed.
	EventModified Event = iota
	// EventFinished means the request reached a terminal state.
	EventFinished
	// EventRemoved means the request was acknowledged and dropped.
	EventRemoved
	// EventRestarted means the request was restarted.
	EventRestarted
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventModified:
		return "modified"
	case EventFinished:
		return "finished"
	case EventRemoved:
		return "removed"
	case EventRestarted:
		return "restarted"
	default:
		return "unknown"
	}
}

// Notification is a status-change message queued to a client's
// subscribed session handlers. Optional fields are nil when the event
// does not carry them.
type Notification struct {
	Event    Event
	Identity Identity

	// PriorityClass is set on EventModified when the priority changed.
	PriorityClass *PriorityClass
	// ClientToken is set on EventModified when the token changed.
	ClientToken *string

	// Succeeded and FailureReason are set on EventFinished. The reason
	// is engine-reported and opaque to this layer.
	Succeeded     bool
	FailureReason string
}

// StatusCache mirrors a subset of record fields for status queries that
// must not lock full records. Implementations trade a bounded staleness
// window for read concurrency.
type StatusCache interface {
	SetPriority(identifier string, p PriorityClass)
	UpdateStarted(identifier string, started bool)
	UpdateProgress(identifier string, successFraction float64)
}

// Owner is one client queue entry in the client registry. Every record
// on a reboot- or crash-persistent tier is bound to exactly one Owner.
// The client package implements it.
type Owner interface {
	// Name returns the client name; empty for the shared queue.
	Name() string
	// Shared reports whether this is the implicit shared queue.
	Shared() bool
	// Tier is the durability class common to every record this owner
	// holds.
	Tier() Tier
	// Binding returns the engine scheduling identity for the given
	// priority band.
	Binding(realtime bool) engine.Binding
	// FinishedRequest routes a terminal record into the Finished state
	// on the owning queue.
	FinishedRequest(r *Record)
	// QueueNotification enqueues a status-change notification for
	// subscribed session handlers.
	QueueNotification(n Notification)
	// StatusCache returns the owner's status cache, or nil.
	StatusCache() StatusCache
}

// Session owns connection-scoped records directly, without a registry
// entry. It dies with the originating session.
type Session interface {
	Binding(realtime bool) engine.Binding
	FinishedRequest(r *Record)
}

// Job is a unit of work executed by the durable job runner, strictly
// one at a time.
type Job func(ctx context.Context)

// JobPriority hints where a job enters the runner's queue.
type JobPriority uint8

const (
	// JobNormal is the default submission priority.
	JobNormal JobPriority = iota
	// JobHigh jumps ahead of normal submissions.
	JobHigh
)

// JobRunner is the durable facility restart and checkpoint work is
// submitted to: a single-writer, crash-safe task queue. The persist
// package implements it.
type JobRunner interface {
	// Queue submits a job. It fails with warren.ErrPersistenceUnavailable
	// when durability is globally disabled and warren.ErrRunnerDraining
	// when the runner is shutting down. Refusals are reported to the
	// caller, never retried here.
	Queue(job Job, priority JobPriority) error

	// RequestCheckpointSoon asks for an out-of-band checkpoint without
	// blocking the caller on a synchronous flush.
	RequestCheckpointSoon()
}

// Root resolves client queue entries and re-registers resumed records so
// future checkpoints include them. The client registry implements it.
type Root interface {
	// MakeClient resolves (shared, name) to the crash-persistent client
	// entry, creating it if needed. It works at any time after a
	// restart, independent of record resumption order.
	MakeClient(shared bool, name string) Owner

	// Resume registers a freshly deserialized record with the
	// persistent root.
	Resume(r *Record) error
}

// ResumeEnv carries the process-local facilities a record re-acquires
// after deserialization; none of them appear in the serialized form.
type ResumeEnv struct {
	Root    Root
	Engines engine.Factory
	Runner  JobRunner
	Logger  *slog.Logger
}

// Buffer is a cached payload buffer owned by a record. Free releases
// the underlying storage; callers must tolerate at most one call.
type Buffer interface {
	Free()
}
