package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scryerhq/scryer-core/internal/executor"
	"github.com/scryerhq/scryer-core/internal/store"
)

// defaultSleepGracePeriod is how long before the next scheduled flow a
// device's screen is allowed to sleep, when nothing overrides it.
const defaultSleepGracePeriod = 300 * time.Second

// lockRetryDelay is how long a flow that lost the unlock race waits before
// being re-enqueued, per §4.7.3.6.
const lockRetryDelay = 10 * time.Second

// minPeriodicSleep is the floor on a periodic loop's re-sleep. The loop
// sleeps the flow's interval less any overshoot of its own previous sleep;
// the flow's run time on the device worker is not subtracted.
const minPeriodicSleep = 5 * time.Second

// Logger is the narrow logging surface Scheduler uses.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Info(string, ...any)  {}

// FlowStore is the subset of *store.Store the scheduler needs: reading
// enabled flows for the periodic loop, and re-reading one flow (to pick up
// enabled/disabled toggles) on dequeue.
type FlowStore interface {
	ListEnabledFlows(ctx context.Context) ([]*store.Flow, error)
	GetFlow(ctx context.Context, anyID, flowID string) (*store.Flow, error)
}

// IdentityResolver resolves a flow's stable device ID to its current
// connection ID, re-resolved fresh on every dequeue (§4.7.3.3) so a
// reconnected or re-IP'd device doesn't stall its queue.
type IdentityResolver interface {
	ResolveToConnection(ctx context.Context, anyID string) (string, error)
}

// ScreenLocker puts a device's screen to sleep once its scheduler decides
// it's safe to (§4.7.5). *adbtransport.Transport satisfies this via
// KeyEvent with the power keycode.
type ScreenLocker interface {
	KeyEvent(ctx context.Context, cid string, keycode int) error
}

const keycodePower = 26

// Scheduler is the Flow Scheduler (C7): a priority queue and worker per
// device, a periodic re-enqueue loop per enabled flow, and the Execution
// Router dispatch between running a flow locally or on a companion app.
type Scheduler struct {
	store      FlowStore
	resolver   IdentityResolver
	runner     FlowRunner
	bridge     companionDispatcher
	locker     ScreenLocker
	unlockCfg  executor.UnlockConfig
	wizard     *wizardSet
	liveView   func(sdid string) bool
	sleepGrace func(sdid string) time.Duration
	logger     Logger

	mu      sync.Mutex
	queues  map[string]*deviceQueue
	started map[string]bool // flow_id -> periodic loop already running

	wg sync.WaitGroup
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithLiveViewChecker injects a predicate reporting whether a device
// currently has an active live-view stream, which blocks screen lock.
func WithLiveViewChecker(fn func(sdid string) bool) Option {
	return func(s *Scheduler) { s.liveView = fn }
}

// WithSleepGracePeriod overrides the default 300s sleep grace period with a
// per-device lookup.
func WithSleepGracePeriod(fn func(sdid string) time.Duration) Option {
	return func(s *Scheduler) { s.sleepGrace = fn }
}

// New builds a Scheduler. bridge may be nil if no companion-app dispatch is
// wired; "auto" flows then run server-side only, and "android" flows fail.
func New(st FlowStore, resolver IdentityResolver, runner FlowRunner, bridge companionDispatcher, locker ScreenLocker, unlockCfg executor.UnlockConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     st,
		resolver:  resolver,
		runner:    runner,
		bridge:    bridge,
		locker:    locker,
		unlockCfg: unlockCfg,
		wizard:    newWizardSet(),
		logger:    noopLogger{},
		queues:    make(map[string]*deviceQueue),
		started:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger overrides the default no-op logger.
func (s *Scheduler) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetWizardActive marks (or clears) a device as mid-commissioning-wizard,
// which skips its queued flows until cleared (§4.7.3.4).
func (s *Scheduler) SetWizardActive(sdid string, active bool) {
	s.wizard.set(sdid, active)
}

// Enqueue adds an on-demand flow run to its device's queue, bypassing the
// periodic-loop dedup set.
func (s *Scheduler) Enqueue(sdid string, flow *store.Flow, reason string) {
	s.queueFor(sdid).enqueue(QueuedFlow{
		Priority:  PriorityOnDemand,
		Timestamp: time.Now(),
		FlowID:    flow.FlowID,
		Flow:      flow,
		Reason:    reason,
	}, true)
}

func (s *Scheduler) queueFor(sdid string) *deviceQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	dq, ok := s.queues[sdid]
	if !ok {
		dq = newDeviceQueue()
		s.queues[sdid] = dq
	}
	return dq
}

// Start launches one periodic-enqueue loop per currently enabled flow and
// one worker per device that has an enabled flow, all bound to ctx. It
// returns once the initial flow list has been read; the loops it launches
// keep running until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	flows, err := s.store.ListEnabledFlows(ctx)
	if err != nil {
		return err
	}
	for _, flow := range flows {
		s.ensurePeriodicLoop(ctx, flow)
		s.ensureWorker(ctx, flow.StableDeviceID)
	}
	return nil
}

// Wait blocks until every loop Start launched has exited (ctx cancellation).
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) ensurePeriodicLoop(ctx context.Context, flow *store.Flow) {
	s.mu.Lock()
	if s.started[flow.FlowID] {
		s.mu.Unlock()
		return
	}
	s.started[flow.FlowID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runPeriodicLoop(ctx, flow.StableDeviceID, flow.FlowID)
}

func (s *Scheduler) ensureWorker(ctx context.Context, sdid string) {
	s.mu.Lock()
	dq, ok := s.queues[sdid]
	if !ok {
		dq = newDeviceQueue()
		s.queues[sdid] = dq
	}
	started := dq.workerStarted
	dq.workerStarted = true
	s.mu.Unlock()

	if started {
		return
	}
	s.wg.Add(1)
	go s.runDeviceWorker(ctx, sdid)
}

// runPeriodicLoop implements §4.7.2: re-read the flow each cycle so
// enabled/disabled toggles and interval edits take effect without a
// restart, enqueue at the interval's priority band, then sleep.
func (s *Scheduler) runPeriodicLoop(ctx context.Context, sdid, flowID string) {
	defer s.wg.Done()

	lastDuration := time.Duration(0)
	for {
		flow, err := s.store.GetFlow(ctx, sdid, flowID)
		if err != nil || !flow.Enabled {
			return
		}

		start := time.Now()
		s.queueFor(sdid).enqueue(QueuedFlow{
			Priority:  priorityForInterval(flow.UpdateIntervalSeconds),
			Timestamp: start,
			FlowID:    flow.FlowID,
			Flow:      flow,
			Reason:    "periodic",
		}, false)

		interval := time.Duration(flow.UpdateIntervalSeconds) * time.Second
		sleep := interval - lastDuration
		if sleep < minPeriodicSleep {
			sleep = minPeriodicSleep
		}
		s.queueFor(sdid).noteNextRun(start.Add(sleep))

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
		lastDuration = time.Since(start) - sleep
		if lastDuration < 0 {
			lastDuration = 0
		}
	}
}

// runDeviceWorker implements §4.7.3: block on the device's queue, dispatch
// the highest-priority flow, then decide whether to lock the screen.
func (s *Scheduler) runDeviceWorker(ctx context.Context, sdid string) {
	defer s.wg.Done()
	dq := s.queueFor(sdid)

	for {
		select {
		case <-ctx.Done():
			return
		case <-dq.wake:
		}

		for {
			q, ok := dq.pop()
			if !ok {
				break
			}
			s.runOne(ctx, sdid, dq, q)
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, sdid string, dq *deviceQueue, q QueuedFlow) {
	if s.wizard.active(sdid) {
		s.logger.Info("scheduler: skipping flow, wizard active", "sdid", sdid, "flow_id", q.FlowID)
		return
	}

	flow, err := s.store.GetFlow(ctx, sdid, q.FlowID)
	if err != nil || !flow.Enabled {
		return
	}

	cid, err := s.resolver.ResolveToConnection(ctx, sdid)
	if err != nil {
		s.logger.Warn("scheduler: resolving connection failed", "sdid", sdid, "error", err)
		return
	}

	dq.runMu.Lock()
	defer dq.runMu.Unlock()

	result := dispatch(ctx, s.runner, s.bridge, sdid, cid, flow, executor.Mode{})
	if !result.Succeeded && (errors.Is(result.Err, executor.ErrUnlockCooldown) || errors.Is(result.Err, executor.ErrUnlockFailed)) {
		retry := QueuedFlow{
			Priority: retryPriority(q.Priority),
			FlowID:   q.FlowID,
			Flow:     flow,
			Reason:   "retry",
		}
		time.AfterFunc(lockRetryDelay, func() {
			retry.Timestamp = time.Now()
			dq.enqueue(retry, true)
		})
		return
	}

	dq.mu.Lock()
	dq.lastExecAt = time.Now()
	dq.totalExecutions++
	dq.mu.Unlock()

	if result.Succeeded && s.shouldLockDevice(sdid) {
		if s.locker != nil {
			if err := s.locker.KeyEvent(ctx, cid, keycodePower); err != nil {
				s.logger.Warn("scheduler: locking screen failed", "sdid", sdid, "error", err)
			}
		}
	}
}

// shouldLockDevice implements §4.7.5: lock iff the device has an unlock
// strategy configured, no wizard is active, no live view is streaming, and
// the next scheduled flow is further away than the device's sleep grace
// period.
func (s *Scheduler) shouldLockDevice(sdid string) bool {
	if s.unlockCfg == nil {
		return false
	}
	if _, configured := s.unlockCfg.PIN(sdid); !configured {
		return false
	}
	if s.wizard.active(sdid) {
		return false
	}
	if s.liveView != nil && s.liveView(sdid) {
		return false
	}

	grace := defaultSleepGracePeriod
	if s.sleepGrace != nil {
		grace = s.sleepGrace(sdid)
	}
	if until, known := s.queueFor(sdid).timeUntilNextRun(); known && until <= grace {
		return false
	}
	return true
}

// DeviceStats is a snapshot of one device's queue for the read-only
// metrics surface.
type DeviceStats struct {
	QueueDepth      int
	TotalExecutions int
	LastExecAt      time.Time
}

// Stats returns a snapshot of every device queue currently tracked. Safe
// to call concurrently with running workers.
func (s *Scheduler) Stats() map[string]DeviceStats {
	s.mu.Lock()
	sdids := make([]string, 0, len(s.queues))
	queues := make([]*deviceQueue, 0, len(s.queues))
	for sdid, dq := range s.queues {
		sdids = append(sdids, sdid)
		queues = append(queues, dq)
	}
	s.mu.Unlock()

	out := make(map[string]DeviceStats, len(sdids))
	for i, dq := range queues {
		dq.mu.Lock()
		out[sdids[i]] = DeviceStats{
			QueueDepth:      dq.depth,
			TotalExecutions: dq.totalExecutions,
			LastExecAt:      dq.lastExecAt,
		}
		dq.mu.Unlock()
	}
	return out
}

// wizardSet tracks which devices currently have a commissioning wizard
// open, mirroring internal/executor's knownSensorSet shape but
// mutex-guarded since Scheduler workers run concurrently across devices.
type wizardSet struct {
	mu      sync.Mutex
	devices map[string]bool
}

func newWizardSet() *wizardSet {
	return &wizardSet{devices: make(map[string]bool)}
}

func (w *wizardSet) set(sdid string, active bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if active {
		w.devices[sdid] = true
	} else {
		delete(w.devices, sdid)
	}
}

func (w *wizardSet) active(sdid string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.devices[sdid]
}
