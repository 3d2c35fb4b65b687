package executor

import (
	"context"
	"strconv"
	"strings"

	"github.com/scryerhq/scryer-core/internal/store"
	"github.com/scryerhq/scryer-core/internal/uimodel"
)

// maxLandmarksPerScreen caps how many element signatures feed the
// navigation graph per observation, keeping screen fingerprints stable
// under minor UI noise (a clock tick, a badge count).
const maxLandmarksPerScreen = 12

// learnTransport is the primitive surface Learn Mode needs.
type learnTransport interface {
	Shell(ctx context.Context, cid string, cmd string) (string, error)
	DumpUI(ctx context.Context, cid string) (string, error)
}

// observeScreen implements §4.6.4.e's learn-mode snapshot: dump the
// current UI, filter to "meaningful" elements (ones with a resource ID or
// visible text, that are clickable or scrollable — pure decoration is
// noise), and package them into a ScreenObservation the navigation graph
// can hash and store.
func observeScreen(ctx context.Context, t learnTransport, cid, source string) (ScreenObservation, error) {
	activity, err := currentActivity(ctx, t, cid)
	if err != nil {
		return ScreenObservation{}, err
	}

	xml, err := t.DumpUI(ctx, cid)
	if err != nil {
		return ScreenObservation{}, err
	}
	tree, err := uimodel.Parse(xml, uimodel.ParseFull)
	if err != nil {
		return ScreenObservation{}, err
	}

	landmarks := meaningfulLandmarks(tree)
	pkg := activity
	if idx := strings.Index(activity, "/"); idx >= 0 {
		pkg = activity[:idx]
	}

	return ScreenObservation{
		Activity:    activity,
		Package:     pkg,
		Landmarks:   landmarks,
		LearnedFrom: source,
	}, nil
}

// meaningfulLandmarks extracts a bounded, stable signature set from a UI
// tree: elements that carry identity (a resource ID or nonempty text) and
// are interactive (clickable or scrollable) survive; pure layout
// containers and decoration don't.
func meaningfulLandmarks(tree *uimodel.Element) []string {
	var landmarks []string
	for _, el := range tree.Flatten() {
		if len(landmarks) >= maxLandmarksPerScreen {
			break
		}
		if el.ResourceID == "" && el.Text == "" {
			continue
		}
		if !el.ClickableSelf && !el.Scrollable {
			continue
		}
		landmarks = append(landmarks, landmarkSignature(el))
	}
	return landmarks
}

func landmarkSignature(el *uimodel.Element) string {
	if el.ResourceID != "" {
		return "id:" + el.ResourceID
	}
	return "text:" + el.Text
}

// feedLearnMode records a screen observation into the navigation graph,
// records the edge from the previous observed screen (if any) described by
// the step that produced this one, and bumps the run's learned-screen
// counter. Called after every step that changes the screen, when Mode.Learn
// is set.
func feedLearnMode(ctx context.Context, nav NavGraph, fc *flowContext, sdid string, obs ScreenObservation, step store.Step) error {
	if nav == nil {
		return nil
	}

	screenID := nav.ScreenID(sdid, obs)
	if prev, ok := fc.getLastScreenID(); ok && prev != screenID {
		if err := nav.RecordTransition(ctx, sdid, prev, screenID, transitionFromStep(step)); err != nil {
			return err
		}
	}

	if err := nav.RecordObservation(ctx, sdid, obs); err != nil {
		return err
	}
	fc.setLastScreenID(screenID)
	fc.incrementLearnedScreens()
	return nil
}

// transitionFromStep derives a replayable NavTransition from the flow step
// that was just executed, so the navigation graph can later replay the same
// primitive during smart navigation.
func transitionFromStep(step store.Step) NavTransition {
	switch step.StepType {
	case "tap":
		return NavTransition{ActionType: "tap", X: step.X, Y: step.Y}
	case "swipe":
		return NavTransition{ActionType: "swipe", X: step.X, Y: step.Y}
	case "keyevent":
		code, _ := strconv.Atoi(step.KeyCode)
		return NavTransition{ActionType: "keyevent", KeyCode: code}
	case "go_back":
		return NavTransition{ActionType: "keyevent", KeyCode: keycodeBack}
	case "go_home":
		return NavTransition{ActionType: "keyevent", KeyCode: keycodeHome}
	default:
		return NavTransition{ActionType: "observed"}
	}
}
