package warren

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("warren: no record store configured")
	ErrStoreClosed = errors.New("warren: record store closed")

	// Not found errors.
	ErrRequestNotFound = errors.New("warren: request not found")
	ErrClientNotFound  = errors.New("warren: client not found")

	// Conflict errors.
	ErrIdentifierCollision = errors.New("warren: request identifier already in use")

	// Lifecycle errors.
	ErrIllegalTransition = errors.New("warren: illegal lifecycle transition")
	ErrAlreadyFinished   = errors.New("warren: request already finished")
	ErrInvalidPriority   = errors.New("warren: priority class out of range")

	// Durability errors. ErrPersistenceUnavailable means durability is
	// globally disabled; ErrRunnerDraining means the durable job runner
	// is shutting down and refuses new jobs. Neither is retried
	// automatically by this layer.
	ErrPersistenceUnavailable = errors.New("warren: persistence unavailable")
	ErrRunnerDraining         = errors.New("warren: durable job runner draining")
)
