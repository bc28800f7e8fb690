package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/checksum"
	"github.com/warrennet/warren/request"
	"github.com/warrennet/warren/store"
)

// Source enumerates the records that belong in durable storage.
type Source interface {
	ForEachForever(fn func(*request.Record))
}

// Hooks receives runner lifecycle events. Implementations must not
// block; they run on the writer goroutine.
type Hooks interface {
	CheckpointCompleted(ctx context.Context, records int, took time.Duration)
}

// Runner is the single-writer durable executor. It implements
// request.JobRunner.
type Runner struct {
	store   store.RecordStore
	checker checksum.Checker
	source  Source
	logger  *slog.Logger
	hooks   Hooks

	enabled  bool
	interval time.Duration

	high   chan request.Job
	normal chan request.Job
	asap   chan struct{}

	mu       sync.Mutex
	running  bool
	draining bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

var _ request.JobRunner = (*Runner)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithInterval sets the periodic checkpoint interval.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBuffer sets the job queue capacity for each priority band.
func WithBuffer(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.high = make(chan request.Job, n)
			r.normal = make(chan request.Job, n)
		}
	}
}

// WithEnabled toggles durable persistence. A disabled runner refuses
// jobs with warren.ErrPersistenceUnavailable and never touches the
// store.
func WithEnabled(enabled bool) Option {
	return func(r *Runner) { r.enabled = enabled }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(r *Runner) { r.hooks = h }
}

// NewRunner builds a runner over the given store. The source supplies
// the records each checkpoint serializes.
func NewRunner(st store.RecordStore, checker checksum.Checker, source Source, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := warren.DefaultConfig()
	r := &Runner{
		store:    st,
		checker:  checker,
		source:   source,
		logger:   logger,
		enabled:  true,
		interval: cfg.CheckpointInterval,
		high:     make(chan request.Job, cfg.JobBuffer),
		normal:   make(chan request.Job, cfg.JobBuffer),
		asap:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether durable persistence is active.
func (r *Runner) Enabled() bool { return r.enabled }

// Queue submits a job to the writer goroutine. High-priority jobs are
// preferred over normal ones when both are pending. Queue reports a
// refusal rather than retrying: callers decide what a failed submission
// means for their operation.
func (r *Runner) Queue(job request.Job, priority request.JobPriority) error {
	if !r.enabled {
		return warren.ErrPersistenceUnavailable
	}
	r.mu.Lock()
	draining := r.draining
	r.mu.Unlock()
	if draining {
		return warren.ErrRunnerDraining
	}
	ch := r.normal
	if priority == request.JobHigh {
		ch = r.high
	}
	select {
	case ch <- job:
		return nil
	case <-r.stopCh:
		return warren.ErrRunnerDraining
	}
}

// RequestCheckpointSoon asks for a checkpoint on the next loop
// iteration. Repeated calls before the checkpoint runs coalesce into
// one write pass.
func (r *Runner) RequestCheckpointSoon() {
	if !r.enabled {
		return
	}
	select {
	case r.asap <- struct{}{}:
	default:
	}
}

// DeleteRecord queues removal of a record's durable copy. The delete
// runs on the writer goroutine so it cannot race a checkpoint of the
// same record.
func (r *Runner) DeleteRecord(id request.Identity) error {
	key := id.Key()
	return r.Queue(func(ctx context.Context) {
		if err := r.store.Delete(ctx, key); err != nil {
			r.logger.Warn("durable delete failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}, request.JobNormal)
}

// Start launches the writer goroutine. A disabled runner starts as a
// no-op.
func (r *Runner) Start(ctx context.Context) error {
	if !r.enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.running = true
	go r.run(ctx)
	return nil
}

// Stop drains queued jobs, writes a final checkpoint, and waits for the
// writer goroutine to exit or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	if !r.enabled {
		return nil
	}
	r.mu.Lock()
	if !r.running || r.draining {
		r.mu.Unlock()
		return nil
	}
	r.draining = true
	close(r.stopCh)
	r.mu.Unlock()

	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		// Drain the high-priority band before anything else.
		select {
		case job := <-r.high:
			r.runJob(ctx, job)
			continue
		default:
		}

		select {
		case job := <-r.high:
			r.runJob(ctx, job)
		case job := <-r.normal:
			r.runJob(ctx, job)
		case <-r.asap:
			r.checkpoint(ctx)
		case <-ticker.C:
			r.checkpoint(ctx)
		case <-r.stopCh:
			r.drain(ctx)
			r.checkpoint(ctx)
			return
		}
	}
}

// drain executes jobs that were accepted before the stop signal.
func (r *Runner) drain(ctx context.Context) {
	for {
		select {
		case job := <-r.high:
			r.runJob(ctx, job)
		case job := <-r.normal:
			r.runJob(ctx, job)
		default:
			return
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job request.Job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("durable job panicked", slog.Any("panic", rec))
		}
	}()
	job(ctx)
}

// checkpoint serializes every persistent record to the store. Records
// that refuse to encode or fail to write are logged and skipped; one
// bad record must not block durability for the rest.
func (r *Runner) checkpoint(ctx context.Context) {
	if r.source == nil || r.store == nil {
		return
	}
	start := time.Now()
	var written int
	r.source.ForEachForever(func(rec *request.Record) {
		id, ok := rec.Identity()
		if !ok {
			return
		}
		payload, err := rec.Encode()
		if err != nil {
			r.logger.Warn("checkpoint encode failed",
				slog.String("identifier", rec.Identifier()),
				slog.String("error", err.Error()))
			return
		}
		blob, err := sealRecord(id, payload, r.checker)
		if err != nil {
			r.logger.Warn("checkpoint seal failed",
				slog.String("identifier", rec.Identifier()),
				slog.String("error", err.Error()))
			return
		}
		if err := r.store.Put(ctx, id.Key(), blob); err != nil {
			r.logger.Warn("checkpoint write failed",
				slog.String("identifier", rec.Identifier()),
				slog.String("error", err.Error()))
			return
		}
		written++
	})
	took := time.Since(start)
	r.logger.Debug("checkpoint complete",
		slog.Int("records", written),
		slog.Duration("took", took))
	if r.hooks != nil {
		r.hooks.CheckpointCompleted(ctx, written, took)
	}
}
