// Package warren is the request lifecycle and persistence manager of a
// warren node — a peer in a content-addressed distributed data store.
//
// Clients submit long-running fetch and insert requests; an external
// execution engine performs the actual network and storage work. This
// module tracks every outstanding request, assigns it to one of three
// durability tiers, serializes crash-persistent requests with integrity
// checking so they survive a process restart, and coordinates lifecycle
// transitions under concurrent access.
//
// # Architecture
//
// The root package holds configuration, error sentinels, and the Node,
// a thin coordinator over narrow internal interfaces. Subsystems live in
// their own packages:
//
//   - request: the per-request lifecycle state machine and record codec
//   - client: the registry of client queues and notification fanout
//   - persist: the single-writer durable job runner and checkpointing
//   - status: a weak-consistency read cache for status queries
//   - store: durable blob storage backends (memory, sqlite, redis, postgres)
//   - engine: interfaces to the collaborator execution engine
//   - ext: lifecycle hook registry for extensions
//
// Use the node package to wire everything together; the root package
// cannot import subsystem packages because they import it back for
// configuration and error sentinels.
package warren
