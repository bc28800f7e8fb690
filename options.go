package warren

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Node.
type Option func(*Node) error

// Storer is the minimal store interface held by the Node. It covers
// lifecycle operations only. The full record store interface
// (store.RecordStore) is used by the persist layer, which does not
// create an import cycle with this package.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// jobRunner is an internal interface for the durable job runner
// lifecycle.
type jobRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle
// events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Node is the central coordinator for request lifecycle management on a
// warren peer. It holds references to subsystem components via internal
// interfaces to avoid import cycles. Use the node package to wire
// everything together.
type Node struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	runner     jobRunner
	extensions extensionEmitter

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Node with the given options.
func New(opts ...Option) (*Node, error) {
	n := &Node{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Logger returns the node's logger.
func (n *Node) Logger() *slog.Logger { return n.logger }

// Store returns the node's record store.
func (n *Node) Store() Storer { return n.store }

// Config returns a copy of the node's configuration.
func (n *Node) Config() Config { return n.config }

// SetRunner sets the durable job runner (called by the node package).
func (n *Node) SetRunner(r jobRunner) { n.runner = r }

// SetExtensions sets the extension emitter (called by the node package).
func (n *Node) SetExtensions(e extensionEmitter) { n.extensions = e }

// Start begins durable job processing and resumes persisted requests.
func (n *Node) Start(ctx context.Context) error {
	if n.runner == nil {
		return ErrNoStore
	}
	if err := n.runner.Start(ctx); err != nil {
		return err
	}
	n.started = true
	return nil
}

// Stop gracefully shuts down the node: drains the durable job runner,
// writes the final checkpoint, and closes the store.
func (n *Node) Stop(ctx context.Context) error {
	if n.runner != nil && n.started {
		if err := n.runner.Stop(ctx); err != nil {
			n.logger.Error("runner stop error", "error", err)
		}
	}
	if n.extensions != nil {
		n.extensions.EmitShutdown(ctx)
	}
	if n.store != nil {
		return n.store.Close()
	}
	return nil
}

// WithLogger sets the structured logger for the node.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

// WithStore sets the durable record store for the node. The store must
// implement Storer at minimum; typically it will be a store.RecordStore.
func WithStore(s Storer) Option {
	return func(n *Node) error {
		n.store = s
		return nil
	}
}

// WithCheckpointInterval sets how often periodic checkpoints are written.
func WithCheckpointInterval(d time.Duration) Option {
	return func(n *Node) error {
		n.config.CheckpointInterval = d
		return nil
	}
}

// WithJanitorSchedule sets the cron expression for eviction of finished
// but unacknowledged requests. An empty schedule disables the janitor.
func WithJanitorSchedule(expr string) Option {
	return func(n *Node) error {
		n.config.JanitorSchedule = expr
		return nil
	}
}

// WithCompletedRetention sets how long finished requests may sit
// unacknowledged before eviction.
func WithCompletedRetention(d time.Duration) Option {
	return func(n *Node) error {
		n.config.CompletedRetention = d
		return nil
	}
}

// WithPersistence globally enables or disables the crash-persistent
// tier. When disabled, durable operations fail with
// ErrPersistenceUnavailable.
func WithPersistence(enabled bool) Option {
	return func(n *Node) error {
		n.config.PersistenceEnabled = enabled
		return nil
	}
}
