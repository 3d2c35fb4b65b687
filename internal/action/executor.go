package action

import (
	"context"
	"fmt"
	"time"

	"github.com/scryerhq/scryer-core/internal/adbtransport"
	"github.com/scryerhq/scryer-core/internal/store"
	"github.com/scryerhq/scryer-core/internal/uimodel"
)

// Transport is the subset of *adbtransport.Transport an action needs to
// run, narrowed so tests can substitute a fake device.
type Transport interface {
	Tap(ctx context.Context, cid string, p adbtransport.Point) error
	Swipe(ctx context.Context, cid string, p1, p2 adbtransport.Point, durationMs int) error
	TypeText(ctx context.Context, cid string, text string) error
	KeyEvent(ctx context.Context, cid string, keycode int) error
	Shell(ctx context.Context, cid string, cmd string) (string, error)
	DumpUI(ctx context.Context, cid string) (string, error)
}

// NavigationHook is invoked after a tap/swipe whose purpose might be
// screen navigation, unless skipNavigation is set by the caller (the
// flow executor sets it: a flow step has already handled navigation
// verification, so re-verifying here would be redundant).
type NavigationHook func(ctx context.Context, cid string)

// Executor runs store.Action records against a device.
type Executor struct {
	transport Transport
	onNavigate NavigationHook
}

// New constructs an Executor over a Transport. onNavigate may be nil.
func New(transport Transport, onNavigate NavigationHook) *Executor {
	return &Executor{transport: transport, onNavigate: onNavigate}
}

// Execute runs action a against device cid. skipNavigation suppresses the
// post-action navigation hook; the flow step dispatcher (execute_action)
// passes true since the flow is assumed to have already navigated, while
// a standalone trigger (e.g. a button press with no flow context) passes
// false.
func (e *Executor) Execute(ctx context.Context, cid string, a *store.Action, skipNavigation bool) error {
	var err error
	switch a.ActionType {
	case "tap":
		err = e.executeTap(ctx, cid, a)
	case "swipe":
		err = e.executeSwipe(ctx, cid, a)
	case "text":
		err = e.executeText(ctx, cid, a)
	case "keyevent":
		err = e.executeKeyEvent(ctx, cid, a)
	case "launch_app":
		err = e.executeLaunchApp(ctx, cid, a)
	case "delay":
		err = e.executeDelay(ctx, a)
	case "macro":
		err = e.executeMacro(ctx, cid, a, skipNavigation)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownType, a.ActionType)
	}
	if err != nil {
		return err
	}

	if !skipNavigation && e.onNavigate != nil && (a.ActionType == "tap" || a.ActionType == "swipe") {
		e.onNavigate(ctx, cid)
	}
	return nil
}

func paramInt(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// resolvePoint resolves an action's target coordinates, preferring a
// recorded element (resolved live via uimodel) over hard-coded x/y so
// actions survive minor layout shifts the same way flow-step taps do.
func (e *Executor) resolvePoint(ctx context.Context, cid string, params map[string]any) (adbtransport.Point, error) {
	if resourceID, ok := paramString(params, "element_resource_id"); ok && resourceID != "" {
		xml, err := e.transport.DumpUI(ctx, cid)
		if err == nil {
			tree, parseErr := uimodel.Parse(xml, uimodel.ParseFull)
			if parseErr == nil {
				match := uimodel.Find(tree, uimodel.Query{ResourceID: resourceID})
				if match.Found {
					return adbtransport.Point{X: match.Bounds.CenterX(), Y: match.Bounds.CenterY()}, nil
				}
			}
		}
	}

	x, xOK := paramInt(params, "x")
	y, yOK := paramInt(params, "y")
	if !xOK || !yOK {
		return adbtransport.Point{}, ErrElementNotFound
	}
	return adbtransport.Point{X: x, Y: y}, nil
}

func (e *Executor) executeTap(ctx context.Context, cid string, a *store.Action) error {
	p, err := e.resolvePoint(ctx, cid, a.Parameters)
	if err != nil {
		return err
	}
	return e.transport.Tap(ctx, cid, p)
}

func (e *Executor) executeSwipe(ctx context.Context, cid string, a *store.Action) error {
	x1, ok1 := paramInt(a.Parameters, "x")
	y1, ok2 := paramInt(a.Parameters, "y")
	x2, ok3 := paramInt(a.Parameters, "x2")
	y2, ok4 := paramInt(a.Parameters, "y2")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return fmt.Errorf("%w: x, y, x2, y2", ErrMissingParameter)
	}
	duration, _ := paramInt(a.Parameters, "duration_ms")
	if duration == 0 {
		duration = 300
	}
	return e.transport.Swipe(ctx, cid, adbtransport.Point{X: x1, Y: y1}, adbtransport.Point{X: x2, Y: y2}, duration)
}

func (e *Executor) executeText(ctx context.Context, cid string, a *store.Action) error {
	text, ok := paramString(a.Parameters, "text")
	if !ok {
		return fmt.Errorf("%w: text", ErrMissingParameter)
	}
	return e.transport.TypeText(ctx, cid, text)
}

func (e *Executor) executeKeyEvent(ctx context.Context, cid string, a *store.Action) error {
	code, ok := paramInt(a.Parameters, "key_code")
	if !ok {
		return fmt.Errorf("%w: key_code", ErrMissingParameter)
	}
	return e.transport.KeyEvent(ctx, cid, code)
}

func (e *Executor) executeLaunchApp(ctx context.Context, cid string, a *store.Action) error {
	pkg, ok := paramString(a.Parameters, "package")
	if !ok {
		return fmt.Errorf("%w: package", ErrMissingParameter)
	}
	_, err := e.transport.Shell(ctx, cid, "monkey -p "+pkg+" -c android.intent.category.LAUNCHER 1")
	return err
}

func (e *Executor) executeDelay(ctx context.Context, a *store.Action) error {
	ms, _ := paramInt(a.Parameters, "duration_ms")
	if ms <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// executeMacro runs a fixed sequence of sub-actions recorded under the
// "steps" parameter, each a map matching the same Parameters shape as a
// standalone Action of the named action_type.
func (e *Executor) executeMacro(ctx context.Context, cid string, a *store.Action, skipNavigation bool) error {
	raw, ok := a.Parameters["steps"]
	if !ok {
		return fmt.Errorf("%w: steps", ErrMissingParameter)
	}
	steps, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%w: steps must be a list", ErrMissingParameter)
	}

	for i, rawStep := range steps {
		stepMap, ok := rawStep.(map[string]any)
		if !ok {
			return fmt.Errorf("macro step %d: not an object", i)
		}
		actionType, _ := paramString(stepMap, "action_type")
		params, _ := stepMap["parameters"].(map[string]any)
		sub := &store.Action{
			ActionID:   fmt.Sprintf("%s-step-%d", a.ActionID, i),
			ActionType: actionType,
			Parameters: params,
		}
		if err := e.Execute(ctx, cid, sub, skipNavigation); err != nil {
			return fmt.Errorf("macro step %d (%s): %w", i, actionType, err)
		}
	}
	return nil
}
