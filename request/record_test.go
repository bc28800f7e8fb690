package request_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/engine"
	"github.com/warrennet/warren/request"
)

// ──────────────────────────────────────────────────
// Test fixtures
// ──────────────────────────────────────────────────

type fakeEngine struct {
	mu         sync.Mutex
	starts     int
	cancels    int
	restarts   int
	priorities []int
	resumes    int
	shutdowns  int

	canRestart bool
	startErr   error
	restartErr error
}

func (e *fakeEngine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return e.startErr
}

func (e *fakeEngine) Cancel(context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
}

func (e *fakeEngine) CanRestart() bool { return e.canRestart }

func (e *fakeEngine) Restart(context.Context, bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restarts++
	return e.restartErr
}

func (e *fakeEngine) SetPriority(_ context.Context, p int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priorities = append(e.priorities, p)
}

func (e *fakeEngine) OnResume(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumes++
	return nil
}

func (e *fakeEngine) FullyResumed() bool { return false }

func (e *fakeEngine) OnShutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdowns++
	return nil
}

func (e *fakeEngine) Progress() engine.Progress { return engine.Progress{} }
func (e *fakeEngine) FailureReason(bool) string { return "" }
func (e *fakeEngine) HasSucceeded() bool        { return false }

type fakeBinding struct {
	persistent bool
	realtime   bool
}

func (b fakeBinding) Persistent() bool { return b.persistent }
func (b fakeBinding) Realtime() bool   { return b.realtime }

type fakeCache struct {
	mu         sync.Mutex
	priorities []request.PriorityClass
	started    []bool
	fractions  []float64
}

func (c *fakeCache) SetPriority(_ string, p request.PriorityClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priorities = append(c.priorities, p)
}

func (c *fakeCache) UpdateStarted(_ string, started bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, started)
}

func (c *fakeCache) UpdateProgress(_ string, f float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fractions = append(c.fractions, f)
}

type fakeOwner struct {
	shared bool
	name   string
	tier   request.Tier
	cache  *fakeCache

	mu            sync.Mutex
	notifications []request.Notification
	finished      []*request.Record
}

func newFakeOwner(name string, tier request.Tier) *fakeOwner {
	return &fakeOwner{name: name, tier: tier, cache: &fakeCache{}}
}

func (o *fakeOwner) Name() string       { return o.name }
func (o *fakeOwner) Shared() bool       { return o.shared }
func (o *fakeOwner) Tier() request.Tier { return o.tier }

func (o *fakeOwner) Binding(realtime bool) engine.Binding {
	return fakeBinding{persistent: o.tier == request.TierForever, realtime: realtime}
}

func (o *fakeOwner) FinishedRequest(r *request.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

func (o *fakeOwner) QueueNotification(n request.Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = append(o.notifications, n)
}

func (o *fakeOwner) StatusCache() request.StatusCache { return o.cache }

func (o *fakeOwner) notificationCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.notifications)
}

type fakeSession struct {
	mu       sync.Mutex
	finished []*request.Record
}

func (s *fakeSession) Binding(realtime bool) engine.Binding {
	return fakeBinding{realtime: realtime}
}

func (s *fakeSession) FinishedRequest(r *request.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, r)
}

type fakeRunner struct {
	mu             sync.Mutex
	jobs           []request.Job
	priorities     []request.JobPriority
	checkpointSoon int
	queueErr       error
}

func (r *fakeRunner) Queue(job request.Job, priority request.JobPriority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queueErr != nil {
		return r.queueErr
	}
	r.jobs = append(r.jobs, job)
	r.priorities = append(r.priorities, priority)
	return nil
}

func (r *fakeRunner) RequestCheckpointSoon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpointSoon++
}

// runAll executes queued jobs synchronously, as the single-writer
// runner would.
func (r *fakeRunner) runAll(ctx context.Context) {
	r.mu.Lock()
	jobs := r.jobs
	r.jobs = nil
	r.mu.Unlock()
	for _, job := range jobs {
		job(ctx)
	}
}

type fakeFactory struct {
	eng *fakeEngine

	mu    sync.Mutex
	specs []engine.Spec
	err   error
}

func (f *fakeFactory) New(_ context.Context, spec engine.Spec, _ engine.Binding, _ engine.Callbacks) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.specs = append(f.specs, spec)
	return f.eng, nil
}

type fakeBuffer struct {
	frees atomic.Int32
}

func (b *fakeBuffer) Free() { b.frees.Add(1) }

func rebootParams(owner *fakeOwner) request.Params {
	return request.Params{
		Target:     "warren://docs/readme",
		Identifier: "req-1",
		Priority:   3,
		Tier:       request.TierReboot,
		Owner:      owner,
	}
}

func foreverParams(owner *fakeOwner, runner *fakeRunner) request.Params {
	return request.Params{
		Target:     "warren://docs/readme",
		Identifier: "req-1",
		Priority:   3,
		Tier:       request.TierForever,
		Owner:      owner,
		Runner:     runner,
	}
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNewGet_BindsEngineSpec(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	f := &fakeFactory{eng: &fakeEngine{}}

	p := rebootParams(owner)
	p.Realtime = true
	rec, err := request.NewGet(context.Background(), f, p, true)
	if err != nil {
		t.Fatalf("NewGet: %v", err)
	}

	if len(f.specs) != 1 {
		t.Fatalf("expected 1 engine spec, got %d", len(f.specs))
	}
	spec := f.specs[0]
	if spec.Op != engine.OpFetch {
		t.Errorf("spec.Op = %v, want OpFetch", spec.Op)
	}
	if spec.Target != "warren://docs/readme" {
		t.Errorf("spec.Target = %q", spec.Target)
	}
	if spec.Priority != 3 {
		t.Errorf("spec.Priority = %d, want 3", spec.Priority)
	}
	if !spec.Realtime || !spec.DisableFilterData {
		t.Errorf("spec.Realtime = %v, spec.DisableFilterData = %v, want both true", spec.Realtime, spec.DisableFilterData)
	}
	if rec.Engine() == nil {
		t.Error("record has no engine attached")
	}
	if rec.Kind() != request.KindGet {
		t.Errorf("Kind = %v, want KindGet", rec.Kind())
	}
}

func TestNewPut_BindsInsertSpec(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	f := &fakeFactory{eng: &fakeEngine{}}

	rec, err := request.NewPut(context.Background(), f, rebootParams(owner), &fakeBuffer{})
	if err != nil {
		t.Fatalf("NewPut: %v", err)
	}
	if f.specs[0].Op != engine.OpInsert {
		t.Errorf("spec.Op = %v, want OpInsert", f.specs[0].Op)
	}
	if rec.Kind() != request.KindPut {
		t.Errorf("Kind = %v, want KindPut", rec.Kind())
	}
}

func TestSharedQueue_ForcesMaxVerbosity(t *testing.T) {
	owner := newFakeOwner("", request.TierReboot)
	owner.shared = true
	f := &fakeFactory{eng: &fakeEngine{}}

	p := rebootParams(owner)
	p.Verbosity = 1
	rec, err := request.NewGet(context.Background(), f, p, false)
	if err != nil {
		t.Fatalf("NewGet: %v", err)
	}
	if rec.Verbosity() != 1<<31-1 {
		t.Errorf("shared-queue verbosity = %d, want max int32", rec.Verbosity())
	}
}

func TestParams_Validation(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	f := &fakeFactory{eng: &fakeEngine{}}
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*request.Params)
	}{
		{"missing identifier", func(p *request.Params) { p.Identifier = "" }},
		{"priority too high", func(p *request.Params) { p.Priority = -1 }},
		{"priority too low", func(p *request.Params) { p.Priority = 7 }},
		{"owner on connection tier", func(p *request.Params) {
			p.Tier = request.TierConnection
			p.Session = &fakeSession{}
		}},
		{"missing owner", func(p *request.Params) { p.Owner = nil }},
		{"forever without runner", func(p *request.Params) {
			p.Tier = request.TierForever
			p.Owner = newFakeOwner("alice", request.TierForever)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := rebootParams(owner)
			tc.mutate(&p)
			if _, err := request.NewGet(ctx, f, p, false); err == nil {
				t.Error("expected construction error, got nil")
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Start / Cancel
// ──────────────────────────────────────────────────

func TestStart_Idempotent(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	eng := &fakeEngine{}
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), eng)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	ctx := context.Background()

	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if eng.starts != 1 {
		t.Errorf("engine starts = %d, want 1", eng.starts)
	}
	if !rec.Started() {
		t.Error("record not marked started")
	}
}

func TestStart_EngineErrorRevertsStarted(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	eng := &fakeEngine{startErr: errors.New("no route")}
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), eng)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	if err := rec.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if rec.Started() {
		t.Error("record marked started after engine error")
	}
}

func TestCancel_ReleasesBufferExactlyOnce(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	eng := &fakeEngine{}
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), eng)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	buf := &fakeBuffer{}
	rec.AttachPayload(buf)

	ctx := context.Background()
	rec.Cancel(ctx)
	rec.Cancel(ctx)
	rec.Dropped(ctx)

	if got := buf.frees.Load(); got != 1 {
		t.Errorf("buffer freed %d times, want exactly 1", got)
	}
	if eng.cancels == 0 {
		t.Error("engine never cancelled")
	}
}

func TestCancel_ConcurrentSingleFree(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	buf := &fakeBuffer{}
	rec.AttachPayload(buf)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Cancel(context.Background())
		}()
	}
	wg.Wait()

	if got := buf.frees.Load(); got != 1 {
		t.Errorf("buffer freed %d times under concurrent cancel, want 1", got)
	}
}

func TestAttachPayload_AfterCancelFreesImmediately(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	rec.Cancel(context.Background())

	buf := &fakeBuffer{}
	rec.AttachPayload(buf)
	if got := buf.frees.Load(); got != 1 {
		t.Errorf("late payload freed %d times, want 1", got)
	}
}

// ──────────────────────────────────────────────────
// Modify
// ──────────────────────────────────────────────────

func TestModify_NoChangeEmitsNothing(t *testing.T) {
	owner := newFakeOwner("alice", request.TierForever)
	runner := &fakeRunner{}
	rec, err := request.NewForTesting(request.KindGet, foreverParams(owner, runner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	// Nil fields mean no change requested.
	if err := rec.Modify(context.Background(), nil, nil); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	// Same value as current is a no-op too.
	same := request.PriorityClass(3)
	if err := rec.Modify(context.Background(), nil, &same); err != nil {
		t.Fatalf("Modify: %v", err)
	}

	if n := owner.notificationCount(); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	if runner.checkpointSoon != 0 {
		t.Errorf("checkpoint requests = %d, want 0", runner.checkpointSoon)
	}
}

func TestModify_PriorityChange(t *testing.T) {
	owner := newFakeOwner("alice", request.TierForever)
	runner := &fakeRunner{}
	eng := &fakeEngine{}
	rec, err := request.NewForTesting(request.KindGet, foreverParams(owner, runner), eng)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	p := request.PriorityClass(1)
	if err := rec.Modify(context.Background(), nil, &p); err != nil {
		t.Fatalf("Modify: %v", err)
	}

	if rec.Priority() != 1 {
		t.Errorf("Priority = %d, want 1", rec.Priority())
	}
	if len(eng.priorities) != 1 || eng.priorities[0] != 1 {
		t.Errorf("engine priorities = %v, want [1]", eng.priorities)
	}
	if len(owner.cache.priorities) != 1 || owner.cache.priorities[0] != 1 {
		t.Errorf("cache priorities = %v, want [1]", owner.cache.priorities)
	}
	if runner.checkpointSoon != 1 {
		t.Errorf("checkpoint requests = %d, want 1", runner.checkpointSoon)
	}

	if n := owner.notificationCount(); n != 1 {
		t.Fatalf("notifications = %d, want 1", n)
	}
	nt := owner.notifications[0]
	if nt.Event != request.EventModified {
		t.Errorf("event = %v, want EventModified", nt.Event)
	}
	if nt.PriorityClass == nil || *nt.PriorityClass != 1 {
		t.Errorf("notification priority = %v, want 1", nt.PriorityClass)
	}
	if nt.ClientToken != nil {
		t.Errorf("notification token = %v, want nil", nt.ClientToken)
	}
}

func TestModify_RepeatedSameValueCheckpointsOnce(t *testing.T) {
	owner := newFakeOwner("alice", request.TierForever)
	runner := &fakeRunner{}
	rec, err := request.NewForTesting(request.KindGet, foreverParams(owner, runner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	tok := "job-42"
	ctx := context.Background()
	if err := rec.Modify(ctx, &tok, nil); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if err := rec.Modify(ctx, &tok, nil); err != nil {
		t.Fatalf("second Modify: %v", err)
	}

	if n := owner.notificationCount(); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	if runner.checkpointSoon != 1 {
		t.Errorf("checkpoint requests = %d, want 1", runner.checkpointSoon)
	}
	if got, ok := rec.ClientToken(); !ok || got != "job-42" {
		t.Errorf("ClientToken = %q, %v", got, ok)
	}
}

func TestModify_InvalidPriorityRejected(t *testing.T) {
	owner := newFakeOwner("alice", request.TierForever)
	runner := &fakeRunner{}
	rec, err := request.NewForTesting(request.KindGet, foreverParams(owner, runner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	bad := request.PriorityClass(9)
	err = rec.Modify(context.Background(), nil, &bad)
	if !errors.Is(err, warren.ErrInvalidPriority) {
		t.Fatalf("err = %v, want ErrInvalidPriority", err)
	}
	if rec.Priority() != 3 {
		t.Errorf("priority mutated to %d by rejected modify", rec.Priority())
	}
	if n := owner.notificationCount(); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}

// ──────────────────────────────────────────────────
// Restart
// ──────────────────────────────────────────────────

func TestRestartAsync_RejectedWhenEngineCannotRestart(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	eng := &fakeEngine{canRestart: false}
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), eng)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = rec.RestartAsync(context.Background(), false)
	if !errors.Is(err, warren.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
	if !rec.Started() {
		t.Error("rejected restart cleared started state")
	}
}

func TestRestartAsync_ForeverGoesThroughRunner(t *testing.T) {
	owner := newFakeOwner("alice", request.TierForever)
	runner := &fakeRunner{}
	eng := &fakeEngine{canRestart: true}
	rec, err := request.NewForTesting(request.KindGet, foreverParams(owner, runner), eng)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	ctx := context.Background()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Finished(false, "data not found")

	if err := rec.RestartAsync(ctx, false); err != nil {
		t.Fatalf("RestartAsync: %v", err)
	}
	if len(runner.priorities) != 1 || runner.priorities[0] != request.JobHigh {
		t.Fatalf("job priorities = %v, want [JobHigh]", runner.priorities)
	}
	if rec.Started() {
		t.Error("record started before the durable job ran")
	}
	if eng.restarts != 0 {
		t.Errorf("engine restarted %d times before the job ran", eng.restarts)
	}

	runner.runAll(ctx)
	if eng.restarts != 1 {
		t.Errorf("engine restarts = %d, want 1", eng.restarts)
	}
	if !rec.Started() {
		t.Error("record not started after the durable job ran")
	}
	last := owner.notifications[len(owner.notifications)-1]
	if last.Event != request.EventRestarted {
		t.Errorf("last event = %v, want EventRestarted", last.Event)
	}
}

func TestRestartAsync_RunnerRefusalReported(t *testing.T) {
	owner := newFakeOwner("alice", request.TierForever)
	runner := &fakeRunner{queueErr: warren.ErrRunnerDraining}
	eng := &fakeEngine{canRestart: true}
	rec, err := request.NewForTesting(request.KindGet, foreverParams(owner, runner), eng)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	err = rec.RestartAsync(context.Background(), false)
	if !errors.Is(err, warren.ErrRunnerDraining) {
		t.Fatalf("err = %v, want ErrRunnerDraining", err)
	}
	if rec.Started() {
		t.Error("record started despite refused restart")
	}
	if eng.restarts != 0 {
		t.Errorf("engine restarted %d times despite refusal", eng.restarts)
	}
}

// ──────────────────────────────────────────────────
// Finish routing
// ──────────────────────────────────────────────────

func TestFinished_RoutesToOwnerAtMostOnce(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	rec.Finished(true, "")
	rec.Finished(false, "late duplicate")

	if len(owner.finished) != 1 {
		t.Fatalf("owner finished calls = %d, want 1", len(owner.finished))
	}
	if !rec.HasSucceeded() {
		t.Error("first outcome lost to the duplicate")
	}
	if rec.CompletionTime().IsZero() {
		t.Error("completion time not set")
	}
}

func TestFinished_RoutesToSessionForConnectionTier(t *testing.T) {
	session := &fakeSession{}
	rec, err := request.NewForTesting(request.KindGet, request.Params{
		Target:     "warren://docs/readme",
		Identifier: "req-1",
		Priority:   3,
		Tier:       request.TierConnection,
		Session:    session,
	}, &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	rec.Finished(false, "transfer aborted")

	if len(session.finished) != 1 {
		t.Fatalf("session finished calls = %d, want 1", len(session.finished))
	}
	if rec.HasSucceeded() {
		t.Error("failed request reported as succeeded")
	}
	if rec.FailureReason() != "transfer aborted" {
		t.Errorf("failure reason = %q", rec.FailureReason())
	}
}

func TestFinished_ThenCancelStillOneRouting(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	buf := &fakeBuffer{}
	rec.AttachPayload(buf)

	rec.Finished(true, "")
	rec.Cancel(context.Background())

	if len(owner.finished) != 1 {
		t.Errorf("owner finished calls = %d, want 1", len(owner.finished))
	}
	if got := buf.frees.Load(); got != 1 {
		t.Errorf("buffer freed %d times, want 1", got)
	}
}

// ──────────────────────────────────────────────────
// Resume
// ──────────────────────────────────────────────────

func TestOnResume_RejectsNonPersistentTiers(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), &fakeEngine{})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	err = rec.OnResume(context.Background(), request.ResumeEnv{})
	if !errors.Is(err, warren.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestProgressUpdated_MirrorsFractionToCache(t *testing.T) {
	owner := newFakeOwner("alice", request.TierReboot)
	rec, err := request.NewForTesting(request.KindGet, rebootParams(owner), &fakeEngine{})
	if err != nil {
		t.Fatalf("NewForTesting: %v", err)
	}

	rec.ProgressUpdated(engine.Progress{SuccessFraction: 0.25})
	rec.ProgressUpdated(engine.Progress{SuccessFraction: 0.75})

	owner.cache.mu.Lock()
	defer owner.cache.mu.Unlock()
	if len(owner.cache.fractions) != 2 || owner.cache.fractions[1] != 0.75 {
		t.Errorf("fractions = %v, want [0.25 0.75]", owner.cache.fractions)
	}
}
