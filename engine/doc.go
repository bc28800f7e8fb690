// Package engine defines the interfaces to the execution engine — the
// collaborator that performs the actual fetch and insert network work
// for a request. The lifecycle core never blocks on network I/O itself;
// all such waiting happens behind these interfaces.
//
// The engine reports terminal outcomes and progress by invoking
// Callbacks; the lifecycle core stores and relays an engine-reported
// failure reason but never interprets it.
package engine
