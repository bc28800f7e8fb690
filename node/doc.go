// Package node wires all Warren subsystems together. It creates the
// client registry, durable job runner, extension registry, and janitor,
// and provides the submit/modify/restart/remove operations.
//
// This package exists to break the import cycle: the root warren
// package defines the coordinator handle (imported by request, client,
// persist) and so cannot import those packages back. The node package
// sits above all subsystem packages and below the application layer.
package node
