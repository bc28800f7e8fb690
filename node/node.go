package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/metric"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/backoff"
	"github.com/warrennet/warren/checksum"
	"github.com/warrennet/warren/client"
	"github.com/warrennet/warren/engine"
	"github.com/warrennet/warren/ext"
	"github.com/warrennet/warren/observability"
	"github.com/warrennet/warren/persist"
	"github.com/warrennet/warren/request"
	"github.com/warrennet/warren/store"
)

// runnerHooks adapts *ext.Registry to satisfy persist.Hooks. The persist
// package defines the interface, ext.Registry provides the
// implementation, and the node layer plugs them together.
type runnerHooks struct {
	r *ext.Registry
}

func (h runnerHooks) CheckpointCompleted(ctx context.Context, records int, took time.Duration) {
	h.r.EmitCheckpointCompleted(ctx, records, took)
}

// hookSink bridges one client's notification stream into extension
// emissions, so extensions observe terminal outcomes and modifications
// that happen outside a node API call.
type hookSink struct {
	n *Node
	c *client.Client
}

func (s hookSink) Notify(nt request.Notification) {
	ctx := context.Background()
	switch nt.Event {
	case request.EventModified:
		if rec, ok := s.c.Get(nt.Identity.Identifier); ok {
			s.n.extensions.EmitRequestModified(ctx, rec)
		}
	case request.EventFinished:
		if rec, ok := s.c.Get(nt.Identity.Identifier); ok {
			s.n.extensions.EmitRequestFinished(ctx, rec, nt.Succeeded, nt.FailureReason)
		}
	case request.EventRestarted:
		if rec, ok := s.c.Get(nt.Identity.Identifier); ok {
			s.n.extensions.EmitRequestRestarted(ctx, rec)
		}
	case request.EventRemoved:
		s.n.extensions.EmitRequestRemoved(ctx, nt.Identity)
	}
}

// Node wraps the coordinator with typed subsystem access.
// Use Build() to create one.
type Node struct {
	base       *warren.Node
	engines    engine.Factory
	registry   *client.Registry
	runner     *persist.Runner
	extensions *ext.Registry
	janitor    *cron.Cron
	logger     *slog.Logger

	// OpenTelemetry provider (optional; nil means use global).
	meterProvider metric.MeterProvider

	mu         sync.Mutex
	subscribed map[*client.Client]bool
}

// Option configures a Node.
type Option func(*Node)

// WithExtension registers an extension with the node.
func WithExtension(e ext.Extension) Option {
	return func(n *Node) {
		n.extensions.Register(e)
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the node's
// observability extension. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(n *Node) {
		n.meterProvider = mp
	}
}

// Build creates a Node from an existing coordinator. When persistence
// is enabled the coordinator's store must implement store.RecordStore.
func Build(base *warren.Node, engines engine.Factory, opts ...Option) (*Node, error) {
	logger := base.Logger()
	cfg := base.Config()

	n := &Node{
		base:       base,
		engines:    engines,
		registry:   client.NewRegistry(logger),
		extensions: ext.NewRegistry(logger),
		logger:     logger,
		subscribed: make(map[*client.Client]bool),
	}

	for _, opt := range opts {
		opt(n)
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	var err error
	if n.meterProvider != nil {
		obsExt, err = observability.NewMetricsExtensionWithProvider(n.meterProvider)
	} else {
		obsExt, err = observability.NewMetricsExtension()
	}
	if err != nil {
		return nil, fmt.Errorf("node: build metrics extension: %w", err)
	}
	n.extensions.Register(obsExt)

	// The durable job runner needs the full record store, not just the
	// lifecycle surface the coordinator holds.
	var rs store.RecordStore
	if st := base.Store(); st != nil {
		var ok bool
		rs, ok = st.(store.RecordStore)
		if !ok {
			return nil, fmt.Errorf("warren: store does not implement store.RecordStore")
		}
	}
	if cfg.PersistenceEnabled && rs == nil {
		return nil, warren.ErrNoStore
	}

	n.runner = persist.NewRunner(rs, checksum.NewCRC32(), n.registry, logger,
		persist.WithEnabled(cfg.PersistenceEnabled && rs != nil),
		persist.WithInterval(cfg.CheckpointInterval),
		persist.WithBuffer(cfg.JobBuffer),
		persist.WithHooks(runnerHooks{r: n.extensions}),
	)

	// Wire back into the coordinator.
	base.SetRunner(n.runner)
	base.SetExtensions(n.extensions)

	// Janitor evicting finished but unacknowledged requests.
	if cfg.JanitorSchedule != "" {
		n.janitor = cron.New()
		if _, err := n.janitor.AddFunc(cfg.JanitorSchedule, func() {
			n.evictCompleted(context.Background(), cfg.CompletedRetention)
		}); err != nil {
			return nil, fmt.Errorf("node: janitor schedule %q: %w", cfg.JanitorSchedule, err)
		}
	}

	return n, nil
}

// Submit describes a new fetch or insert request.
type Submit struct {
	// Shared targets the implicit shared queue; ClientName must be
	// empty.
	Shared bool
	// ClientName selects the owning client queue.
	ClientName string
	// Tier is the durability class.
	Tier request.Tier
	// Session owns the record directly when Tier is TierConnection.
	Session request.Session

	Target      string
	Identifier  string
	Verbosity   int32
	Priority    request.PriorityClass
	Realtime    bool
	ClientToken *string

	// DisableFilterData bypasses content sanitization on fetches.
	DisableFilterData bool
}

// SubmitGet creates and registers a fetch request.
func (n *Node) SubmitGet(ctx context.Context, s Submit) (*request.Record, error) {
	p, c, err := n.params(s)
	if err != nil {
		return nil, err
	}
	rec, err := request.NewGet(ctx, n.engines, p, s.DisableFilterData)
	if err != nil {
		return nil, err
	}
	return n.register(ctx, c, rec)
}

// SubmitPut creates and registers an insert request. data is the source
// payload buffer, or nil when the engine sources the data itself.
func (n *Node) SubmitPut(ctx context.Context, s Submit, data request.Buffer) (*request.Record, error) {
	p, c, err := n.params(s)
	if err != nil {
		return nil, err
	}
	rec, err := request.NewPut(ctx, n.engines, p, data)
	if err != nil {
		return nil, err
	}
	return n.register(ctx, c, rec)
}

func (n *Node) params(s Submit) (request.Params, *client.Client, error) {
	if s.Tier == request.TierForever && !n.runner.Enabled() {
		return request.Params{}, nil, warren.ErrPersistenceUnavailable
	}
	p := request.Params{
		Target:      s.Target,
		Identifier:  s.Identifier,
		Verbosity:   s.Verbosity,
		Priority:    s.Priority,
		Tier:        s.Tier,
		Realtime:    s.Realtime,
		ClientToken: s.ClientToken,
		Session:     s.Session,
	}
	var c *client.Client
	if s.Tier != request.TierConnection {
		c = n.clientFor(s.Shared, s.ClientName, s.Tier)
		p.Owner = c
	}
	if s.Tier == request.TierForever {
		p.Runner = n.runner
	}
	return p, c, nil
}

func (n *Node) register(ctx context.Context, c *client.Client, rec *request.Record) (*request.Record, error) {
	if c != nil {
		if err := c.Register(rec); err != nil {
			return nil, err
		}
	}
	n.extensions.EmitRequestRegistered(ctx, rec)
	if rec.Tier() == request.TierForever {
		n.runner.RequestCheckpointSoon()
	}
	return rec, nil
}

// StartRequest begins execution of a registered request.
func (n *Node) StartRequest(ctx context.Context, rec *request.Record) error {
	if err := rec.Start(ctx); err != nil {
		return err
	}
	n.extensions.EmitRequestStarted(ctx, rec)
	return nil
}

// ModifyRequest changes the client token and/or priority of a queued
// request. Nil fields mean "no change requested".
func (n *Node) ModifyRequest(ctx context.Context, shared bool, name string, tier request.Tier, identifier string, newToken *string, newPriority *request.PriorityClass) error {
	rec, err := n.lookup(shared, name, tier, identifier)
	if err != nil {
		return err
	}
	return rec.Modify(ctx, newToken, newPriority)
}

// RestartRequest restarts a failed or finished request.
func (n *Node) RestartRequest(ctx context.Context, shared bool, name string, tier request.Tier, identifier string, disableFilterData bool) error {
	rec, err := n.lookup(shared, name, tier, identifier)
	if err != nil {
		return err
	}
	return rec.RestartAsync(ctx, disableFilterData)
}

// RemoveRequest acknowledges and drops a request from its queue. On the
// crash-persistent tier the durable copy is deleted through the runner
// so the removal cannot interleave with a checkpoint.
func (n *Node) RemoveRequest(ctx context.Context, shared bool, name string, tier request.Tier, identifier string) error {
	c, ok := n.registry.Lookup(shared, name, tier)
	if !ok {
		return warren.ErrClientNotFound
	}
	rec, err := c.Remove(identifier)
	if err != nil {
		return err
	}
	rec.Dropped(ctx)
	if tier == request.TierForever {
		if id, ok := rec.Identity(); ok {
			if err := n.runner.DeleteRecord(id); err != nil {
				n.logger.Warn("durable delete not queued",
					slog.String("identifier", identifier),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func (n *Node) lookup(shared bool, name string, tier request.Tier, identifier string) (*request.Record, error) {
	c, ok := n.registry.Lookup(shared, name, tier)
	if !ok {
		return nil, warren.ErrClientNotFound
	}
	rec, ok := c.Get(identifier)
	if !ok {
		return nil, warren.ErrRequestNotFound
	}
	return rec, nil
}

// clientFor resolves a client entry and bridges its notifications into
// the extension registry exactly once.
func (n *Node) clientFor(shared bool, name string, tier request.Tier) *client.Client {
	c := n.registry.LookupOrCreate(shared, name, tier)
	n.subscribeHooks(c)
	return c
}

func (n *Node) subscribeHooks(c *client.Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscribed[c] {
		return
	}
	n.subscribed[c] = true
	c.Subscribe(hookSink{n: n, c: c})
}

// Start migrates the store, resumes persisted requests, and begins
// durable job processing and the janitor.
func (n *Node) Start(ctx context.Context) error {
	if rs := n.base.Store(); rs != nil {
		attempts := n.base.Config().StoreConnectAttempts
		if err := backoff.Retry(ctx, backoff.DefaultStrategy(), attempts, rs.Ping); err != nil {
			return fmt.Errorf("node: store unreachable: %w", err)
		}
		if err := rs.Migrate(ctx); err != nil {
			return fmt.Errorf("node: migrate store: %w", err)
		}
	}

	env := request.ResumeEnv{
		Root:    n.registry,
		Engines: n.engines,
		Runner:  n.runner,
		Logger:  n.logger,
	}
	resumed, err := n.runner.Resume(ctx, env)
	if err != nil {
		return fmt.Errorf("node: resume records: %w", err)
	}
	if resumed > 0 {
		// Everything crash-persistent at this point came from the
		// resume pass.
		n.registry.ForEachForever(func(rec *request.Record) {
			n.extensions.EmitRecordResumed(ctx, rec)
		})
	}
	// Resume may have created client entries the node has not seen.
	for _, c := range n.registry.Clients() {
		n.subscribeHooks(c)
	}

	if err := n.base.Start(ctx); err != nil {
		return err
	}
	if n.janitor != nil {
		n.janitor.Start()
	}
	return nil
}

// Stop gracefully shuts down the node: stops the janitor, gives every
// record a shutdown flush, then drains the runner and writes the final
// checkpoint.
func (n *Node) Stop(ctx context.Context) error {
	if d := n.base.Config().ShutdownTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if n.janitor != nil {
		jctx := n.janitor.Stop()
		select {
		case <-jctx.Done():
		case <-ctx.Done():
		}
	}

	n.registry.ForEachRecord(func(rec *request.Record) {
		rec.OnShutdown(ctx)
	})

	return n.base.Stop(ctx)
}

// evictCompleted removes finished requests that have sat unacknowledged
// longer than the retention window.
func (n *Node) evictCompleted(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	for _, c := range n.registry.Clients() {
		for _, e := range c.Cache().Snapshot() {
			if !e.Finished || e.LastActivity.After(cutoff) {
				continue
			}
			tier := c.Tier()
			if err := n.RemoveRequest(ctx, c.Shared(), c.Name(), tier, e.Identifier); err != nil {
				n.logger.Warn("janitor eviction failed",
					slog.String("identifier", e.Identifier),
					slog.String("error", err.Error()))
				continue
			}
			n.logger.Info("evicted completed request",
				slog.String("identifier", e.Identifier),
				slog.String("tier", tier.String()))
		}
	}
}

// Extensions returns the extension registry.
func (n *Node) Extensions() *ext.Registry { return n.extensions }

// Registry returns the client registry.
func (n *Node) Registry() *client.Registry { return n.registry }

// Runner returns the durable job runner.
func (n *Node) Runner() *persist.Runner { return n.runner }

// Base returns the underlying coordinator.
func (n *Node) Base() *warren.Node { return n.base }
