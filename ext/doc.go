// Package ext defines the extension system for Warren.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnRequestFinished(ctx context.Context, rec *request.Record, succeeded bool, reason string) error {
//	    log.Printf("request %s finished: succeeded=%v", rec.Identifier(), succeeded)
//	    return nil
//	}
//
// # Request Lifecycle Hooks
//
//   - [RequestRegistered] — request was added to a client queue
//   - [RequestStarted] — the request's engine began running
//   - [RequestModified] — a mutable field actually changed
//   - [RequestRestarted] — the request was restarted with a fresh engine
//   - [RequestFinished] — request reached a terminal state
//   - [RequestRemoved] — request was removed from its queue
//
// # Persistence Hooks
//
//   - [CheckpointCompleted] — a durable checkpoint pass finished
//   - [RecordResumed] — a record was rebuilt from durable storage
//
// # Other Hooks
//
//   - [Shutdown] — the node is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
