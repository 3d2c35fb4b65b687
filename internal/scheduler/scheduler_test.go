package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scryerhq/scryer-core/internal/executor"
	"github.com/scryerhq/scryer-core/internal/store"
)

type fakeFlowStore struct {
	mu    sync.Mutex
	flows map[string]map[string]*store.Flow // sdid -> flow_id -> flow
}

func newFakeFlowStore() *fakeFlowStore {
	return &fakeFlowStore{flows: make(map[string]map[string]*store.Flow)}
}

func (f *fakeFlowStore) put(sdid string, flow *store.Flow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flows[sdid] == nil {
		f.flows[sdid] = make(map[string]*store.Flow)
	}
	cp := *flow
	f.flows[sdid][flow.FlowID] = &cp
}

func (f *fakeFlowStore) ListEnabledFlows(_ context.Context) ([]*store.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Flow
	for _, byID := range f.flows {
		for _, fl := range byID {
			if fl.Enabled {
				cp := *fl
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeFlowStore) GetFlow(_ context.Context, sdid, flowID string) (*store.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID, ok := f.flows[sdid]
	if !ok {
		return nil, store.ErrNotFound
	}
	fl, ok := byID[flowID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *fl
	return &cp, nil
}

type fakeResolver struct {
	cid string
	err error
}

func (r *fakeResolver) ResolveToConnection(_ context.Context, _ string) (string, error) {
	return r.cid, r.err
}

type fakeRunner struct {
	mu       sync.Mutex
	runCount int32
	err      error
}

func (r *fakeRunner) Run(_ context.Context, _, _ string, flow *store.Flow, _ executor.Mode) (*executor.Result, error) {
	atomic.AddInt32(&r.runCount, 1)
	if r.err != nil {
		return nil, r.err
	}
	return &executor.Result{FlowID: flow.FlowID, Succeeded: true}, nil
}

func (r *fakeRunner) calls() int32 { return atomic.LoadInt32(&r.runCount) }

type fakeUnlockConfig struct {
	pin string
	ok  bool
}

func (c fakeUnlockConfig) PIN(_ string) (string, bool) { return c.pin, c.ok }

type fakeLocker struct {
	mu    sync.Mutex
	locks []string
}

func (l *fakeLocker) KeyEvent(_ context.Context, cid string, _ int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = append(l.locks, cid)
	return nil
}

func testFlow(sdid, flowID string, interval int) *store.Flow {
	return &store.Flow{
		FlowID:                flowID,
		StableDeviceID:        sdid,
		Name:                  "test flow",
		Enabled:               true,
		UpdateIntervalSeconds: interval,
		FlowTimeout:           60,
		Steps:                 []store.Step{{StepType: "wait", DurationMs: 1}},
	}
}

func TestScheduler_EnqueueAndDispatch_RunsServerSide(t *testing.T) {
	fs := newFakeFlowStore()
	flow := testFlow("sdid-1", "flow-1", 60)
	fs.put("sdid-1", flow)

	resolver := &fakeResolver{cid: "cid-1"}
	runner := &fakeRunner{}
	sched := New(fs, resolver, runner, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.ensureWorker(ctx, "sdid-1")
	sched.Enqueue("sdid-1", flow, "on_demand")

	deadline := time.After(2 * time.Second)
	for runner.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("flow was never dispatched")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPriorityForInterval_Bands(t *testing.T) {
	cases := []struct {
		interval int
		want     int
	}{
		{10, PriorityHighPeriodic},
		{29, PriorityHighPeriodic},
		{30, PriorityNormal},
		{299, PriorityNormal},
		{300, PriorityLowPeriodic},
		{3600, PriorityLowPeriodic},
	}
	for _, c := range cases {
		if got := priorityForInterval(c.interval); got != c.want {
			t.Errorf("priorityForInterval(%d) = %d, want %d", c.interval, got, c.want)
		}
	}
}

func TestRetryPriority_CapsAtCeiling(t *testing.T) {
	if got := retryPriority(5); got != 10 {
		t.Errorf("retryPriority(5) = %d, want 10", got)
	}
	if got := retryPriority(18); got != 20 {
		t.Errorf("retryPriority(18) = %d, want 20 (capped)", got)
	}
}

func TestDeviceQueue_DedupDropsPeriodicReenqueue(t *testing.T) {
	dq := newDeviceQueue()
	flow := testFlow("sdid-1", "flow-1", 60)
	q := QueuedFlow{Priority: PriorityNormal, Timestamp: time.Now(), FlowID: flow.FlowID, Flow: flow}

	dq.enqueue(q, false)
	dq.enqueue(q, false) // periodic dedup: should be dropped

	count := 0
	for {
		if _, ok := dq.pop(); !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one queued entry after duplicate periodic enqueues, got %d", count)
	}
}

func TestDeviceQueue_OnDemandBypassesDedup(t *testing.T) {
	dq := newDeviceQueue()
	flow := testFlow("sdid-1", "flow-1", 60)
	q := QueuedFlow{Priority: PriorityOnDemand, Timestamp: time.Now(), FlowID: flow.FlowID, Flow: flow}

	dq.enqueue(q, true)
	dq.enqueue(q, true)

	count := 0
	for {
		if _, ok := dq.pop(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("on-demand enqueues should bypass dedup, got %d entries, want 2", count)
	}
}

func TestDeviceQueue_PopOrdersByPriorityThenFIFO(t *testing.T) {
	dq := newDeviceQueue()
	now := time.Now()

	dq.enqueue(QueuedFlow{Priority: 10, Timestamp: now, FlowID: "b"}, true)
	dq.enqueue(QueuedFlow{Priority: 0, Timestamp: now.Add(time.Second), FlowID: "a"}, true)
	dq.enqueue(QueuedFlow{Priority: 10, Timestamp: now.Add(-time.Second), FlowID: "c"}, true)

	var order []string
	for {
		q, ok := dq.pop()
		if !ok {
			break
		}
		order = append(order, q.FlowID)
	}

	want := []string{"a", "c", "b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q (full: %v)", i, order[i], want[i], order)
		}
	}
}

func TestShouldLockDevice_NoUnlockStrategyConfigured(t *testing.T) {
	fs := newFakeFlowStore()
	sched := New(fs, &fakeResolver{}, &fakeRunner{}, nil, nil, fakeUnlockConfig{ok: false})
	if sched.shouldLockDevice("sdid-1") {
		t.Errorf("expected no lock without a configured unlock strategy")
	}
}

func TestShouldLockDevice_WizardActiveBlocksLock(t *testing.T) {
	fs := newFakeFlowStore()
	sched := New(fs, &fakeResolver{}, &fakeRunner{}, nil, nil, fakeUnlockConfig{pin: "123456", ok: true})
	sched.SetWizardActive("sdid-1", true)
	if sched.shouldLockDevice("sdid-1") {
		t.Errorf("expected no lock while wizard is active")
	}
}

func TestShouldLockDevice_LiveViewBlocksLock(t *testing.T) {
	fs := newFakeFlowStore()
	sched := New(fs, &fakeResolver{}, &fakeRunner{}, nil, nil, fakeUnlockConfig{pin: "123456", ok: true},
		WithLiveViewChecker(func(string) bool { return true }))
	if sched.shouldLockDevice("sdid-1") {
		t.Errorf("expected no lock during an active live view")
	}
}

func TestShouldLockDevice_AllowsLockWithNoSchedulingConstraints(t *testing.T) {
	fs := newFakeFlowStore()
	sched := New(fs, &fakeResolver{}, &fakeRunner{}, nil, nil, fakeUnlockConfig{pin: "123456", ok: true})
	if !sched.shouldLockDevice("sdid-1") {
		t.Errorf("expected lock to be allowed")
	}
}

func TestDispatch_ServerMethod(t *testing.T) {
	flow := testFlow("sdid-1", "flow-1", 60)
	flow.PreferredExecutor = "server"
	runner := &fakeRunner{}

	result := dispatch(context.Background(), runner, nil, "sdid-1", "cid-1", flow, executor.Mode{})
	if !result.Succeeded || result.Method != "server" {
		t.Errorf("dispatch = %+v, want succeeded server", result)
	}
	if runner.calls() != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls())
	}
}

type fakeCompanionDispatcher struct {
	hasCapability bool
	succeeded     bool
	err           error
}

func (f *fakeCompanionDispatcher) HasCapability(_, _ string) bool { return f.hasCapability }

func (f *fakeCompanionDispatcher) SendFlowExecuteRequest(_ context.Context, _, _ string, _ json.RawMessage) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.Marshal(map[string]any{"succeeded": f.succeeded})
}

func TestDispatch_AutoPrefersCompanionWhenCapable(t *testing.T) {
	flow := testFlow("sdid-1", "flow-1", 60)
	runner := &fakeRunner{}
	bridge := &fakeCompanionDispatcher{hasCapability: true, succeeded: true}

	result := dispatch(context.Background(), runner, bridge, "sdid-1", "cid-1", flow, executor.Mode{})
	if !result.Succeeded || result.Method != "auto" || result.UsedFallback {
		t.Errorf("dispatch = %+v, want succeeded companion run with no fallback", result)
	}
	if runner.calls() != 0 {
		t.Errorf("expected server runner untouched when companion succeeds, got %d calls", runner.calls())
	}
}

func TestDispatch_AutoFallsBackWhenCompanionFails(t *testing.T) {
	flow := testFlow("sdid-1", "flow-1", 60)
	runner := &fakeRunner{}
	bridge := &fakeCompanionDispatcher{hasCapability: true, succeeded: false}

	result := dispatch(context.Background(), runner, bridge, "sdid-1", "cid-1", flow, executor.Mode{})
	if !result.Succeeded || !result.UsedFallback {
		t.Errorf("dispatch = %+v, want fallback success", result)
	}
	if runner.calls() != 1 {
		t.Errorf("expected server fallback to run once, got %d calls", runner.calls())
	}
}

func TestDispatch_AutoUsesServerWhenCompanionNotCapable(t *testing.T) {
	flow := testFlow("sdid-1", "flow-1", 60)
	runner := &fakeRunner{}
	bridge := &fakeCompanionDispatcher{hasCapability: false}

	result := dispatch(context.Background(), runner, bridge, "sdid-1", "cid-1", flow, executor.Mode{})
	if !result.Succeeded || result.Method != "auto" || result.UsedFallback {
		t.Errorf("dispatch = %+v, want direct server success with no fallback", result)
	}
}
