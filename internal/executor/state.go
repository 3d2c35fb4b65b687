package executor

import (
	"context"
	"strings"

	"github.com/scryerhq/scryer-core/internal/store"
	"github.com/scryerhq/scryer-core/internal/uimodel"
)

// validationTransport is the primitive surface screen-state validation
// needs.
type validationTransport interface {
	Shell(ctx context.Context, cid string, cmd string) (string, error)
	Screenshot(ctx context.Context, cid string) ([]byte, error)
	DumpUI(ctx context.Context, cid string) (string, error)
}

// defaultStateMatchThreshold is used when a step doesn't specify one.
const defaultStateMatchThreshold = 0.7

// validateScreenState implements §4.6.4.3's hybrid strategy: try a UI
// element match first (cheapest and most specific), fall back to an
// activity-name check, and fall back again to screenshot similarity
// against the last captured screenshot. A step naming none of the three
// validation fields has nothing to validate and passes trivially.
func validateScreenState(ctx context.Context, t validationTransport, fc *flowContext, cid string, step store.Step) (bool, error) {
	if len(step.ExpectedUIElements) == 0 && step.ExpectedActivity == "" && step.ExpectedScreenshot == "" {
		return true, nil
	}

	if len(step.ExpectedUIElements) > 0 {
		xml, err := t.DumpUI(ctx, cid)
		if err != nil {
			return false, err
		}
		tree, err := uimodel.Parse(xml, uimodel.ParseFull)
		if err != nil {
			return false, err
		}
		if matchUIElements(tree, step.ExpectedUIElements, step.UIElementsRequired) {
			return true, nil
		}
	}

	if step.ExpectedActivity != "" {
		activity, err := currentActivity(ctx, t, cid)
		if err != nil {
			return false, err
		}
		if strings.Contains(activity, step.ExpectedActivity) {
			return true, nil
		}
	}

	if step.ExpectedScreenshot != "" {
		current, err := t.Screenshot(ctx, cid)
		if err != nil {
			return false, err
		}
		threshold := step.StateMatchThreshold
		if threshold <= 0 {
			threshold = defaultStateMatchThreshold
		}
		prior := fc.getLastScreenshot()
		if prior == nil {
			fc.setLastScreenshot(current)
			return false, nil
		}
		score, err := screenshotSimilarity(prior, current)
		if err != nil {
			return false, err
		}
		return score >= threshold, nil
	}

	return false, nil
}

// matchUIElements checks how many of wantResourceIDs are present anywhere
// in tree, requiring at least `required` matches (or all of them, when
// required is 0).
func matchUIElements(tree *uimodel.Element, wantResourceIDs []string, required int) bool {
	if required <= 0 {
		required = len(wantResourceIDs)
	}

	present := make(map[string]bool, len(wantResourceIDs))
	for _, el := range tree.Flatten() {
		present[el.ResourceID] = true
	}

	matched := 0
	for _, id := range wantResourceIDs {
		if present[id] {
			matched++
		}
	}
	return matched >= required
}
