package warren

import "time"

// Config holds configuration for a Node.
type Config struct {
	// CheckpointInterval is how often the durable job runner writes a
	// periodic checkpoint of all crash-persistent requests.
	CheckpointInterval time.Duration

	// JobBuffer is the capacity of each durable job submission queue
	// (one per priority hint). Submissions beyond it block.
	JobBuffer int

	// JanitorSchedule is a cron expression controlling when finished but
	// unacknowledged requests are evicted. Empty disables the janitor.
	JanitorSchedule string

	// CompletedRetention is how long a finished request may sit
	// unacknowledged before the janitor drops it.
	CompletedRetention time.Duration

	// ShutdownTimeout is the maximum time to wait for the final
	// checkpoint during graceful shutdown.
	ShutdownTimeout time.Duration

	// StoreConnectAttempts is how many times a startup store ping is
	// retried before the node refuses to start.
	StoreConnectAttempts int

	// PersistenceEnabled globally enables the crash-persistent tier.
	// When false, durable operations fail with ErrPersistenceUnavailable.
	PersistenceEnabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckpointInterval:   5 * time.Minute,
		JobBuffer:            256,
		JanitorSchedule:      "@every 10m",
		CompletedRetention:   24 * time.Hour,
		ShutdownTimeout:      30 * time.Second,
		StoreConnectAttempts: 5,
		PersistenceEnabled:   true,
	}
}
