package request

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/engine"
)

// variant is the per-kind capability of a record: everything that
// differs between a fetch and an insert while the common lifecycle
// lives on Record.
type variant interface {
	kind() Kind

	// freeData releases cached payload buffers. Record guarantees at
	// most one call.
	freeData()

	// encodeDetail appends kind-specific fields after the common
	// header.
	encodeDetail(e *encoder, r *Record)

	// attachPayload hands the variant a cached payload buffer to own.
	attachPayload(b Buffer)

	// reattach re-creates the engine handle after deserialization.
	reattach(ctx context.Context, env ResumeEnv, r *Record) (engine.Engine, error)
}

// Record tracks one outstanding fetch or insert through its lifecycle:
// Created → Started → Running → Finished → acknowledged-and-removed,
// with restart and cancel side transitions. All mutable fields are
// guarded by a record-scoped mutex; status reads that must not contend
// go through the owner's status cache instead.
type Record struct {
	mu sync.Mutex

	identifier string
	target     string
	verbosity  int32
	tier       Tier
	realtime   bool

	priority PriorityClass
	token    string
	hasToken bool
	finished bool
	started  bool
	freed    bool

	succeeded     bool
	failureReason string

	startupTime    time.Time
	completionTime time.Time
	lastActivity   time.Time

	// Exactly one of owner/session is set, determined by tier.
	owner   Owner
	session Session
	binding engine.Binding

	// eng is the one engine instance driving this record; the record
	// never substitutes a different instance. Nil only between
	// deserialization and OnResume.
	eng engine.Engine

	v      variant
	runner JobRunner
	logger *slog.Logger
}

// Params carries the caller-supplied fields for fresh record
// construction.
type Params struct {
	// Target is the URI-like locator to fetch from or insert to.
	Target string

	// Identifier must be unique within the owning queue.
	Identifier string

	// Verbosity selects reporting detail. Forced to maximum for
	// requests on the shared queue.
	Verbosity int32

	// Priority is the initial priority class.
	Priority PriorityClass

	// Tier is the durability class; immutable after construction.
	Tier Tier

	// Realtime selects the realtime priority pool; immutable.
	Realtime bool

	// ClientToken is an opaque client-supplied tag, or nil.
	ClientToken *string

	// Owner is the client queue entry. Required unless Tier is
	// TierConnection.
	Owner Owner

	// Session owns the record directly when Tier is TierConnection.
	Session Session

	// Runner is the durable job runner. Required for TierForever.
	Runner JobRunner

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (p Params) validate(kind Kind) error {
	if p.Identifier == "" {
		return fmt.Errorf("request: %s record requires an identifier", kind)
	}
	if !p.Priority.Valid() {
		return fmt.Errorf("request: priority class %d: %w", p.Priority, warren.ErrInvalidPriority)
	}
	if !p.Tier.valid() {
		return fmt.Errorf("request: unknown durability tier %d", p.Tier)
	}
	if p.Tier == TierConnection {
		if p.Session == nil {
			return fmt.Errorf("request: connection-scoped record requires a session")
		}
		if p.Owner != nil {
			return fmt.Errorf("request: connection-scoped record must not be client-bound")
		}
	} else {
		if p.Owner == nil {
			return fmt.Errorf("request: %s-tier record requires a client owner", p.Tier)
		}
		if p.Owner.Tier() != p.Tier {
			return fmt.Errorf("request: owner tier %s does not match record tier %s", p.Owner.Tier(), p.Tier)
		}
	}
	if p.Tier == TierForever && p.Runner == nil {
		return fmt.Errorf("request: crash-persistent record requires a job runner")
	}
	return nil
}

func newRecord(v variant, p Params) (*Record, error) {
	if err := p.validate(v.kind()); err != nil {
		return nil, err
	}

	r := &Record{
		identifier:  p.Identifier,
		target:      p.Target,
		verbosity:   p.Verbosity,
		tier:        p.Tier,
		realtime:    p.Realtime,
		priority:    p.Priority,
		startupTime: time.Now(),
		owner:       p.Owner,
		session:     p.Session,
		v:           v,
		runner:      p.Runner,
		logger:      p.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if p.ClientToken != nil {
		r.token = *p.ClientToken
		r.hasToken = true
	}

	if p.Session != nil {
		r.binding = p.Session.Binding(p.Realtime)
	} else {
		if p.Owner.Shared() {
			// Shared-queue requests always report at maximum detail.
			r.verbosity = math.MaxInt32
		}
		r.binding = p.Owner.Binding(p.Realtime)
	}
	if r.binding == nil {
		return nil, fmt.Errorf("request: no engine binding for %q", p.Identifier)
	}
	if r.binding.Persistent() != (p.Tier == TierForever) {
		return nil, fmt.Errorf("request: binding persistence %t does not match tier %s",
			r.binding.Persistent(), p.Tier)
	}
	return r, nil
}

// attachEngine sets the record's one engine instance. Construction-time
// only; a record never substitutes a different engine.
func (r *Record) attachEngine(eng engine.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eng = eng
}

// ── Accessors ───────────────────────────────────────

// Identifier returns the request's identifier within its queue.
func (r *Record) Identifier() string { return r.identifier }

// Target returns the URI-like locator of the request.
func (r *Record) Target() string { return r.target }

// Kind returns the request's operation kind.
func (r *Record) Kind() Kind { return r.v.kind() }

// Tier returns the request's durability class.
func (r *Record) Tier() Tier { return r.tier }

// Realtime reports which priority pool the request schedules into.
func (r *Record) Realtime() bool { return r.realtime }

// Verbosity returns the reporting detail level.
func (r *Record) Verbosity() int32 { return r.verbosity }

// Persistent reports whether the request outlives its session.
func (r *Record) Persistent() bool { return r.tier.Persistent() }

// Owner returns the owning client queue entry, or nil for
// connection-scoped records.
func (r *Record) Owner() Owner { return r.owner }

// Binding returns the engine scheduling identity for this record.
func (r *Record) Binding() engine.Binding { return r.binding }

// Engine returns the engine handle driving this record.
func (r *Record) Engine() engine.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng
}

// Identity returns the request identity. ok is false for
// connection-scoped records, which are not associated with any client
// queue.
func (r *Record) Identity() (id Identity, ok bool) {
	r.mu.Lock()
	owner := r.owner
	r.mu.Unlock()
	if owner == nil {
		return Identity{}, false
	}
	return Identity{
		Shared:     owner.Shared(),
		ClientName: owner.Name(),
		Identifier: r.identifier,
		Kind:       r.v.kind(),
	}, true
}

// Priority returns the current priority class.
func (r *Record) Priority() PriorityClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.priority
}

// ClientToken returns the opaque client tag, if set.
func (r *Record) ClientToken() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token, r.hasToken
}

// Started reports whether the request has been started.
func (r *Record) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// HasFinished reports whether the request reached a terminal state.
func (r *Record) HasFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// HasSucceeded reports terminal success.
func (r *Record) HasSucceeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished && r.succeeded
}

// FailureReason returns the engine-reported failure description, or ""
// if none. This layer stores and relays it but never interprets it.
func (r *Record) FailureReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failureReason
}

// StartupTime returns when the record was created.
func (r *Record) StartupTime() time.Time { return r.startupTime }

// CompletionTime returns when the record finished, or the zero time.
func (r *Record) CompletionTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completionTime
}

// LastActivity returns the time of the request's last activity, or the
// zero time if none is known.
func (r *Record) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Progress returns the engine's progress accounting. True progress is
// computed by the engine, not here.
func (r *Record) Progress() engine.Progress {
	eng := r.Engine()
	if eng == nil {
		return engine.Progress{}
	}
	return eng.Progress()
}

// CanRestart reports whether the engine can recover this request by
// restarting it.
func (r *Record) CanRestart() bool {
	eng := r.Engine()
	return eng != nil && eng.CanRestart()
}

// ── Lifecycle operations ────────────────────────────

// Start begins execution by delegating to the engine handle. Starting
// an already-started or finished record is an idempotent no-op.
func (r *Record) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started || r.finished {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.lastActivity = time.Now()
	eng := r.eng
	r.mu.Unlock()

	if eng == nil {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		return fmt.Errorf("request: start %q: no engine attached", r.identifier)
	}
	if err := eng.Start(ctx); err != nil {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		return fmt.Errorf("request: start %q: %w", r.identifier, err)
	}
	r.cacheStarted(true)
	return nil
}

// Cancel propagates cancellation to the engine handle, then releases
// any cached payload buffers. Cancelling an already-finished request is
// a harmless no-op on the engine but still releases buffers, so a
// double cancel cannot leak resources.
func (r *Record) Cancel(ctx context.Context) {
	r.mu.Lock()
	eng := r.eng
	r.mu.Unlock()
	if eng != nil {
		eng.Cancel(ctx)
	}
	r.freeData()
}

// Dropped evicts a finished-but-unacknowledged record to bound memory
// and storage use. Equivalent to Cancel followed by buffer release.
func (r *Record) Dropped(ctx context.Context) {
	r.Cancel(ctx)
	r.freeData()
}

// AttachPayload hands the record a cached payload buffer, e.g. the
// returned data of a completed fetch awaiting acknowledgement. The
// record frees it on cancel, drop, or eviction.
func (r *Record) AttachPayload(b Buffer) {
	r.mu.Lock()
	if r.freed {
		r.mu.Unlock()
		// Already cancelled; don't hold data the lifecycle will never
		// release again.
		b.Free()
		return
	}
	v := r.v
	r.mu.Unlock()
	v.attachPayload(b)
}

// freeData releases cached payload buffers exactly once, no matter how
// many cancel/drop paths race to it.
func (r *Record) freeData() {
	r.mu.Lock()
	if r.freed {
		r.mu.Unlock()
		return
	}
	r.freed = true
	v := r.v
	r.mu.Unlock()
	v.freeData()
}

// Modify updates the client token and/or priority class. Nil arguments
// mean "no change requested". A value equal to the current one is a
// no-op. When anything effectively changed: the engine and status cache
// see the new priority before any notification is emitted, a
// crash-persistent record requests an out-of-band checkpoint so the
// change is not lost to a crash before the next periodic one, and a
// single modified notification is queued. When nothing changed, no
// notification is emitted.
func (r *Record) Modify(ctx context.Context, newToken *string, newPriority *PriorityClass) error {
	if newPriority != nil && !newPriority.Valid() {
		return fmt.Errorf("request: modify %q: priority class %d: %w",
			r.identifier, *newPriority, warren.ErrInvalidPriority)
	}

	r.mu.Lock()
	tokenChanged := false
	if newToken != nil && (!r.hasToken || r.token != *newToken) {
		r.token = *newToken
		r.hasToken = true
		tokenChanged = true
	}
	prioChanged := false
	if newPriority != nil && *newPriority != r.priority {
		r.priority = *newPriority
		prioChanged = true
	}
	if !tokenChanged && !prioChanged {
		r.mu.Unlock()
		return nil
	}
	r.lastActivity = time.Now()
	eng := r.eng
	prio := r.priority
	token := r.token
	// owner and runner are reassigned under the lock during resume;
	// read them here, not after the unlock.
	owner := r.owner
	runner := r.runner
	r.mu.Unlock()

	if prioChanged {
		if eng != nil {
			eng.SetPriority(ctx, int(prio))
		}
		if owner != nil {
			if cache := owner.StatusCache(); cache != nil {
				cache.SetPriority(r.identifier, prio)
			}
		}
	}

	if r.tier == TierForever && runner != nil {
		runner.RequestCheckpointSoon()
	}

	if owner != nil {
		n := Notification{Event: EventModified}
		n.Identity, _ = r.Identity()
		if prioChanged {
			p := prio
			n.PriorityClass = &p
		}
		if tokenChanged {
			t := token
			n.ClientToken = &t
		}
		owner.QueueNotification(n)
	}
	return nil
}

// RestartAsync restarts a recoverably-failed request. For
// crash-persistent records the restart itself is submitted as a durable
// job, so a crash between the decision and its effect cannot duplicate
// or lose the restart; other tiers run it on a worker goroutine. A
// runner refusal (draining, persistence disabled) is reported to the
// caller and never retried here.
func (r *Record) RestartAsync(ctx context.Context, disableFilterData bool) error {
	r.mu.Lock()
	eng := r.eng
	if eng == nil || !eng.CanRestart() {
		r.mu.Unlock()
		return fmt.Errorf("request: restart %q: %w", r.identifier, warren.ErrIllegalTransition)
	}
	r.started = false
	r.finished = false
	r.succeeded = false
	r.failureReason = ""
	r.lastActivity = time.Now()
	runner := r.runner
	r.mu.Unlock()
	r.cacheStarted(false)

	if r.tier == TierForever {
		return runner.Queue(func(jctx context.Context) {
			r.completeRestart(jctx, eng, disableFilterData)
		}, JobHigh)
	}

	go r.completeRestart(ctx, eng, disableFilterData)
	return nil
}

func (r *Record) completeRestart(ctx context.Context, eng engine.Engine, disableFilterData bool) {
	if err := eng.Restart(ctx, disableFilterData); err != nil {
		r.logger.Warn("request restart failed",
			slog.String("identifier", r.identifier),
			slog.String("error", err.Error()),
		)
		return
	}
	r.mu.Lock()
	r.started = true
	r.lastActivity = time.Now()
	r.mu.Unlock()
	r.cacheStarted(true)

	if r.owner != nil {
		n := Notification{Event: EventRestarted}
		n.Identity, _ = r.Identity()
		r.owner.QueueNotification(n)
	}
}

// Finished implements engine.Callbacks: the engine reports terminal
// success or failure here. The terminal routing runs at most once per
// lifecycle; finishing an already-finished (e.g. cancelled) record is a
// safe no-op.
func (r *Record) Finished(succeeded bool, reason string) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	r.finished = true
	r.succeeded = succeeded
	r.failureReason = reason
	r.completionTime = now
	r.lastActivity = now
	owner, session := r.owner, r.session
	r.mu.Unlock()

	if session != nil {
		session.FinishedRequest(r)
		return
	}
	owner.FinishedRequest(r)
}

// ProgressUpdated implements engine.Callbacks. The success fraction is
// mirrored into the owner's status cache for the read fast path.
func (r *Record) ProgressUpdated(p engine.Progress) {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
	if r.owner == nil {
		return
	}
	if cache := r.owner.StatusCache(); cache != nil {
		cache.UpdateProgress(r.identifier, p.SuccessFraction)
	}
}

// OnShutdown gives the engine a chance to persist in-flight state
// shortly before process exit. Invoked once; failures are logged and
// never block shutdown.
func (r *Record) OnShutdown(ctx context.Context) {
	eng := r.Engine()
	if eng == nil {
		return
	}
	if err := eng.OnShutdown(ctx); err != nil {
		r.logger.Warn("request shutdown flush failed",
			slog.String("identifier", r.identifier),
			slog.String("error", err.Error()),
		)
	}
}

// OnResume re-acquires the process-local resources a crash-persistent
// record lost across a restart: the client registry entry, the engine
// binding, and a fresh engine handle via the variant's re-attachment
// hook. It then propagates resume to the engine and registers the
// record with the persistent root so future checkpoints include it.
//
// It must not re-invoke any callback the engine itself re-invokes;
// otherwise completion side effects would run twice.
func (r *Record) OnResume(ctx context.Context, env ResumeEnv) error {
	if r.tier != TierForever {
		return fmt.Errorf("request: resume %q: %s tier is never serialized: %w",
			r.identifier, r.tier, warren.ErrIllegalTransition)
	}

	shared, name := r.queueName()
	owner := env.Root.MakeClient(shared, name)
	binding := owner.Binding(r.realtime)

	r.mu.Lock()
	r.owner = owner
	r.binding = binding
	if env.Runner != nil {
		r.runner = env.Runner
	}
	if env.Logger != nil {
		r.logger = env.Logger
	}
	r.mu.Unlock()

	eng, err := r.v.reattach(ctx, env, r)
	if err != nil {
		return fmt.Errorf("request: resume %q: %w", r.identifier, err)
	}
	r.attachEngine(eng)

	if err := eng.OnResume(ctx); err != nil {
		return fmt.Errorf("request: resume %q: %w", r.identifier, err)
	}
	return env.Root.Resume(r)
}

// queueName returns the owning queue coordinates captured at
// construction or deserialization.
func (r *Record) queueName() (shared bool, name string) {
	if r.owner == nil {
		return false, ""
	}
	return r.owner.Shared(), r.owner.Name()
}

func (r *Record) cacheStarted(started bool) {
	if r.owner == nil {
		return
	}
	if cache := r.owner.StatusCache(); cache != nil {
		cache.UpdateStarted(r.identifier, started)
	}
}

// ── Durable serialization ───────────────────────────

// Encode serializes the record for durable storage: the common header
// followed by kind-specific detail. Only crash-persistent records
// participate in durable serialization.
func (r *Record) Encode() ([]byte, error) {
	if r.tier != TierForever {
		return nil, fmt.Errorf("request: encode %q: %s tier is never serialized", r.identifier, r.tier)
	}
	id, ok := r.Identity()
	if !ok {
		return nil, fmt.Errorf("request: encode %q: record has no identity", r.identifier)
	}

	r.mu.Lock()
	h := Header{
		Identity:      id,
		Realtime:      r.realtime,
		Verbosity:     r.verbosity,
		StartupTime:   r.startupTime,
		PriorityClass: r.priority,
		Finished:      r.finished,
	}
	if r.hasToken {
		tok := r.token
		h.ClientToken = &tok
	}
	r.mu.Unlock()

	e := newEncoder()
	h.writeTo(e)
	r.v.encodeDetail(e, r)
	return e.bytes()
}

// ResumeRecord reconstructs a crash-persistent record from its encoded
// form. blob must already have passed checksum verification; want is
// the identity the caller holds from the store envelope, and a stored
// identity that differs from it means the caller and storage have
// desynchronized. The returned record still needs OnResume before it
// can run.
func ResumeRecord(blob []byte, want Identity, env ResumeEnv) (*Record, error) {
	if err := want.Validate(); err != nil {
		return nil, err
	}
	d := newDecoder(blob)
	h, err := decodeHeader(d, want)
	if err != nil {
		return nil, err
	}

	switch want.Kind {
	case KindGet:
		return resumeGet(d, h, env)
	case KindPut:
		return resumePut(d, h, env)
	default:
		return nil, formatErr(fmt.Sprintf("unknown request kind %d", want.Kind))
	}
}

// resumeCommon builds the record shell shared by the per-kind resume
// paths. The owner is resolved immediately because it may be needed
// before OnResume runs.
func resumeCommon(v variant, h Header, env ResumeEnv, target string) *Record {
	owner := env.Root.MakeClient(h.Identity.Shared, h.Identity.ClientName)
	r := &Record{
		identifier:  h.Identity.Identifier,
		target:      target,
		verbosity:   h.Verbosity,
		tier:        TierForever,
		realtime:    h.Realtime,
		priority:    h.PriorityClass,
		finished:    h.Finished,
		startupTime: h.StartupTime,
		owner:       owner,
		binding:     owner.Binding(h.Realtime),
		v:           v,
		runner:      env.Runner,
		logger:      env.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if h.ClientToken != nil {
		r.token = *h.ClientToken
		r.hasToken = true
	}
	return r
}
