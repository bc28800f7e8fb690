// Package request implements the per-request lifecycle state machine and
// the durable record codec.
//
// A Record tracks one outstanding fetch or insert on behalf of a client
// queue. It is driven through its states by client-facing handlers
// (Start, Cancel, Modify, RestartAsync) and by the execution engine's
// completion callbacks (Finished). Crash-persistent records are
// additionally serialized through the record codec on every checkpoint
// and reconstructed through ResumeRecord after a process restart.
//
// The package defines the interfaces it consumes (Owner, Session,
// StatusCache, JobRunner, Root) rather than importing their
// implementations; the client and persist packages satisfy them and the
// node package plugs everything together.
package request
