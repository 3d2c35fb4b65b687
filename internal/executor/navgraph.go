package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/scryerhq/scryer-core/internal/adbtransport"
)

// ScreenObservation is a screen snapshot fed into the navigation graph
// under Learn Mode, or consulted during smart navigation.
type ScreenObservation struct {
	Activity      string
	Package       string
	Landmarks     []string // filtered "meaningful" element signatures: "id:<resource_id>" or "text:<text>" of clickable/scrollable elements
	LearnedFrom   string   // "learn_mode" | "smart_navigation"
	StepSucceeded bool
}

// NavTransition is one edge the navigation graph suggests walking to get
// from one screen to another.
type NavTransition struct {
	ActionType string // tap, swipe, keyevent
	Element    string // resource ID or text, resolved by the caller via uimodel
	X, Y       int
	KeyCode    int
}

// NavGraph is the screen/transition graph (C8) the executor consults for
// smart navigation and feeds during Learn Mode. Implemented by
// internal/navgraph; declared here so this package doesn't depend on
// navgraph's concrete types, only the contract it needs.
type NavGraph interface {
	// ScreenID derives a stable hash identifying a screen from its
	// activity and landmark set.
	ScreenID(sdid string, obs ScreenObservation) string

	// ShortestPath returns the transition sequence from the current
	// screen to targetScreenID, or an error if no path is known.
	ShortestPath(ctx context.Context, sdid, fromScreenID, targetScreenID string) ([]NavTransition, error)

	// RecordObservation feeds a freshly observed screen into the graph
	// (Learn Mode), creating or reinforcing the node.
	RecordObservation(ctx context.Context, sdid string, obs ScreenObservation) error

	// RecordTransition creates or overwrites the edge between two screens
	// with the concrete replay action that was last observed taking it.
	// Called by Learn Mode as each screen-changing step succeeds.
	RecordTransition(ctx context.Context, sdid, fromScreenID, toScreenID string, transition NavTransition) error

	// RecordTransitionResult updates the graph's success/failure counters
	// and mean transition time for one edge, without altering its action.
	// Called after smart navigation replays a transition.
	RecordTransitionResult(ctx context.Context, sdid, fromScreenID, toScreenID string, succeeded bool, elapsed time.Duration) error

	// HomeScreenID returns the screen ID of the device's known home
	// screen, used as the smart-navigation fallback target.
	HomeScreenID(sdid string) (string, bool)
}

// smartNavTransport is the primitive surface smart navigation needs to
// replay a learned transition and observe the resulting screen.
type smartNavTransport interface {
	learnTransport
	Tap(ctx context.Context, cid string, p adbtransport.Point) error
	Swipe(ctx context.Context, cid string, p1, p2 adbtransport.Point, durationMs int) error
	KeyEvent(ctx context.Context, cid string, keycode int) error
}

// navTransitionSettle is how long smart navigation waits after each replayed
// transition for the new screen to render before observing it.
const navTransitionSettle = 500 * time.Millisecond

// attemptSmartNavigation implements §4.6.7: hash the current screen, look up
// a learned shortest path to targetScreenID, and replay it one transition at
// a time, recording each replay's success back into the graph. Returns an
// error if there is no nav graph, no known path, or a replayed transition
// doesn't change the screen as expected.
func attemptSmartNavigation(ctx context.Context, t smartNavTransport, nav NavGraph, sdid, cid, targetScreenID string) error {
	if nav == nil {
		return ErrNoNavGraph
	}

	obs, err := observeScreen(ctx, t, cid, "smart_navigation")
	if err != nil {
		return fmt.Errorf("smart navigation: observing current screen: %w", err)
	}
	from := nav.ScreenID(sdid, obs)
	if from == targetScreenID {
		return nil
	}

	path, err := nav.ShortestPath(ctx, sdid, from, targetScreenID)
	if err != nil {
		return fmt.Errorf("smart navigation: %w", err)
	}

	cur := from
	for _, transition := range path {
		start := time.Now()
		if err := replayTransition(ctx, t, cid, transition); err != nil {
			return fmt.Errorf("smart navigation: replaying transition: %w", err)
		}

		select {
		case <-time.After(navTransitionSettle):
		case <-ctx.Done():
			return ctx.Err()
		}

		nextObs, obsErr := observeScreen(ctx, t, cid, "smart_navigation")
		succeeded := obsErr == nil
		next := cur
		if succeeded {
			next = nav.ScreenID(sdid, nextObs)
			succeeded = next != cur
		}
		_ = nav.RecordTransitionResult(ctx, sdid, cur, next, succeeded, time.Since(start))
		if !succeeded {
			return fmt.Errorf("smart navigation: transition from %q did not change screen", cur)
		}
		cur = next
	}

	if cur != targetScreenID {
		return fmt.Errorf("smart navigation: reached %q, wanted %q", cur, targetScreenID)
	}
	return nil
}

// replayTransition executes the ADB primitive a learned transition
// describes.
func replayTransition(ctx context.Context, t smartNavTransport, cid string, transition NavTransition) error {
	switch transition.ActionType {
	case "tap":
		return t.Tap(ctx, cid, adbtransport.Point{X: transition.X, Y: transition.Y})
	case "swipe":
		return t.Swipe(ctx, cid, adbtransport.Point{X: transition.X, Y: transition.Y}, adbtransport.Point{X: transition.X, Y: transition.Y - 400}, 300)
	case "keyevent":
		return t.KeyEvent(ctx, cid, transition.KeyCode)
	default:
		return fmt.Errorf("smart navigation: transition has no replayable action (%q)", transition.ActionType)
	}
}
