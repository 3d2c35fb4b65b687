package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/scryerhq/scryer-core/internal/action"
	"github.com/scryerhq/scryer-core/internal/mqttbridge"
	"github.com/scryerhq/scryer-core/internal/store"
)

// Logger is the narrow logging surface Executor uses, matching the
// Logger shape used throughout the rest of this module.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Info(string, ...any)  {}

// DeviceTransport is the full primitive surface Executor needs from
// internal/adbtransport. *adbtransport.Transport satisfies it structurally.
type DeviceTransport interface {
	stepTransport
}

// FlowStore is the subset of *store.Store Executor needs: sensor
// resolution/persistence for capture_sensors, action lookup for
// execute_action, and run-count bookkeeping.
type FlowStore interface {
	sensorStore
	GetAction(ctx context.Context, anyID, actionID string) (*store.Action, error)
	RecordFlowRun(sdid, flowID string, succeeded bool, at time.Time) error
}

// Executor runs flows (§4.6) against one device at a time. It owns no
// scheduling policy — internal/scheduler decides when and how often to
// call Run; this package only knows how to execute a single flow once.
type Executor struct {
	transport DeviceTransport
	store     FlowStore
	bridge    *mqttbridge.Bridge
	actions   *action.Executor
	nav       NavGraph
	interlock UnlockInterlock
	unlockCfg UnlockConfig
	known     *knownSensorSet
	logger    Logger
	ts        TimeseriesWriter
}

// New builds an Executor. nav may be nil until internal/navgraph is
// wired in; Learn Mode and smart navigation are then no-ops.
func New(transport DeviceTransport, st FlowStore, bridge *mqttbridge.Bridge, actions *action.Executor, nav NavGraph, interlock UnlockInterlock, unlockCfg UnlockConfig) *Executor {
	return &Executor{
		transport: transport,
		store:     st,
		bridge:    bridge,
		actions:   actions,
		nav:       nav,
		interlock: interlock,
		unlockCfg: unlockCfg,
		known:     newKnownSensorSet(),
		logger:    noopLogger{},
	}
}

// SetLogger overrides the default no-op logger.
func (e *Executor) SetLogger(l Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetTimeseriesWriter wires an optional time-series export backend. Left
// unset, capture_sensors skips the export and nothing changes.
func (e *Executor) SetTimeseriesWriter(ts TimeseriesWriter) {
	e.ts = ts
}

// Run executes flow against device cid (sdid identifies it stably for
// store/unlock-interlock lookups), implementing the full step-execution
// loop from §4.6: pre-analysis, device prep, per-step retry/recovery/state
// validation, navigation-depth tracking with an end-of-run backtrack, and
// Learn Mode observation feed.
func (e *Executor) Run(ctx context.Context, sdid, cid string, flow *store.Flow, mode Mode) (*Result, error) {
	start := time.Now()
	result := &Result{FlowID: flow.FlowID}

	lookup := func(sensorID string) (*store.Sensor, bool) {
		s, err := e.store.GetSensor(ctx, cid, sensorID)
		return s, err == nil
	}
	skippable := computeSkippable(flow.Steps, lookup, start, mode.Force)
	timeout := computeDynamicTimeout(flow.Steps, time.Duration(flow.FlowTimeout)*time.Second)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !mode.StartFromCurrentScreen {
		if err := prepareDevice(runCtx, e.transport, e.interlock, e.unlockCfg, sdid, cid, flow.AutoWakeBefore, flow.VerifyScreenOn); err != nil {
			result.Error = err.Error()
			e.finish(sdid, flow.FlowID, false, start)
			return result, err
		}
	}

	fc := newFlowContext()
	deps := stepDeps{
		transport: e.transport,
		store:     e.store,
		actions:   e.actions,
		lookupAct: e.store.GetAction,
		bridge:    e.bridge,
		known:     e.known,
		nav:       e.nav,
		mode:      mode,
		ts:        e.ts,
	}

	succeeded := true
	for i, step := range flow.Steps {
		if skippable[i] {
			result.Steps = append(result.Steps, StepResult{Index: i, StepType: step.StepType, Succeeded: true, Skipped: true})
			result.StepsSkipped++
			continue
		}

		stepStart := time.Now()
		sr, err := e.runStepWithRetry(runCtx, deps, fc, sdid, cid, i, step, mode)
		sr.DurationMs = time.Since(stepStart).Milliseconds()
		result.Steps = append(result.Steps, sr)

		if err != nil {
			softNavigationFailure := !mode.Strict && navigationStepTypes[step.StepType]
			if softNavigationFailure {
				result.NavigationFailures = append(result.NavigationFailures, err.Error())
			} else {
				succeeded = false
				result.Error = err.Error()
				if flow.StopOnError {
					break
				}
			}
		}

		if mode.Learn && navigationStepTypes[step.StepType] {
			if obs, obsErr := observeScreen(runCtx, e.transport, cid, "learn_mode"); obsErr == nil {
				_ = feedLearnMode(runCtx, e.nav, fc, sdid, obs, step)
			}
		}
	}

	if flow.BacktrackAfter {
		e.backtrack(runCtx, cid, fc)
	}

	result.Succeeded = succeeded
	result.LearnedScreens = fc.learnedScreens
	result.DurationMs = time.Since(start).Milliseconds()
	e.finish(sdid, flow.FlowID, succeeded, start)

	if !succeeded && result.Error == "" {
		result.Error = "flow failed"
	}
	var retErr error
	if !succeeded {
		retErr = fmt.Errorf("%w: %s", ErrStepFailed, result.Error)
	}
	return result, retErr
}

func (e *Executor) finish(sdid, flowID string, succeeded bool, at time.Time) {
	if err := e.store.RecordFlowRun(sdid, flowID, succeeded, at); err != nil {
		e.logger.Warn("recording flow run failed", "flow_id", flowID, "error", err)
	}
}

// runStepWithRetry implements the retry envelope and recovery-action
// handling from §4.6.4: retry up to MaxRetries on failure when
// RetryOnFailure is set, then apply RecoveryAction if every retry is
// exhausted.
func (e *Executor) runStepWithRetry(ctx context.Context, d stepDeps, fc *flowContext, sdid, cid string, index int, step store.Step, mode Mode) (StepResult, error) {
	sr := StepResult{Index: index, StepType: step.StepType}

	attempts := 1
	if step.RetryOnFailure && step.MaxRetries > 0 {
		attempts = step.MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			sr.Recovered = true
			if err := doWait(ctx, 500*(attempt)); err != nil {
				lastErr = err
				break
			}
		}

		_, lastErr = runStep(ctx, d, fc, cid, step)
		if lastErr == nil && step.ValidateState {
			ok, verr := validateScreenState(ctx, d.transport, fc, cid, step)
			if verr != nil {
				lastErr = verr
			} else if !ok {
				lastErr = fmt.Errorf("%w: post-step state validation failed", ErrStepFailed)
			}
		}
		if lastErr == nil {
			sr.Succeeded = true
			return sr, nil
		}
	}

	if lastErr != nil {
		if recovered, recErr := e.applyRecovery(ctx, d, sdid, cid, step, mode); recovered {
			sr.Succeeded = true
			sr.Recovered = true
			return sr, nil
		} else if recErr != nil {
			lastErr = recErr
		}
	}

	sr.Succeeded = false
	sr.Error = lastErr.Error()
	return sr, lastErr
}

// applyRecovery implements §4.6.4's recovery actions: force_restart_app
// first tries smart navigation to the step's expected screen, falling back
// to force_stop+relaunch when no path is known or the replay fails;
// skip_step treats the failure as non-fatal; fail (the default) propagates
// the original error.
func (e *Executor) applyRecovery(ctx context.Context, d stepDeps, sdid, cid string, step store.Step, mode Mode) (recovered bool, err error) {
	switch step.RecoveryAction {
	case "force_restart_app":
		if step.ExpectedScreenID != "" {
			if navErr := attemptSmartNavigation(ctx, d.transport, d.nav, sdid, cid, step.ExpectedScreenID); navErr == nil {
				return true, nil
			}
		}
		if step.Package == "" {
			return false, nil
		}
		if err := launchApp(ctx, d.transport, cid, step.Package, true); err != nil {
			return false, err
		}
		return true, nil
	case "skip_step":
		return true, nil
	default:
		return false, nil
	}
}

// backtrack undoes navigationDepth screen changes with a go_back per step,
// returning the device to where the flow found it.
func (e *Executor) backtrack(ctx context.Context, cid string, fc *flowContext) {
	for i := 0; i < fc.navigationDepth; i++ {
		_ = e.transport.KeyEvent(ctx, cid, keycodeBack)
	}
}
