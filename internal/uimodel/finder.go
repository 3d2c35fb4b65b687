package uimodel

import "math"

// boundsProximityTolerancePx gates strategy 7: stored bounds must be
// within this many pixels (by center distance) to even be considered,
// before the text/class similarity gate is applied.
const boundsProximityTolerancePx = 40

// driftSimilarPx is the threshold compare_bounds uses to decide whether
// two bounds refer to the "same" on-screen position. Beyond this, the
// executor's Repair Mode kicks in (§4.6).
const driftSimilarPx = 10

// Find locates the element in tree best matching q, trying each strategy
// in decreasing confidence order and returning the first hit.
func Find(tree *Element, q Query) Match {
	elements := tree.Flatten()

	if q.ResourceID != "" && q.ElementText != "" {
		if el := findFirst(elements, func(e *Element) bool {
			return e.ResourceID == q.ResourceID && e.Text == q.ElementText
		}); el != nil {
			return matchFor(el, MethodResourceIDAndText)
		}
	}

	if q.ResourceID != "" {
		if el := findFirst(elements, func(e *Element) bool {
			return e.ResourceID == q.ResourceID
		}); el != nil {
			return matchFor(el, MethodResourceIDOnly)
		}
	}

	if q.ResourceID != "" && q.ElementClass != "" {
		if el := findFirst(elements, func(e *Element) bool {
			return e.ResourceID == q.ResourceID && e.Class == q.ElementClass
		}); el != nil {
			return matchFor(el, MethodResourceIDAndClass)
		}
	}

	if q.ElementText != "" && q.ElementClass != "" {
		if el := findFirst(elements, func(e *Element) bool {
			return e.Text == q.ElementText && e.Class == q.ElementClass
		}); el != nil {
			return matchFor(el, MethodTextAndClass)
		}
	}

	if q.ElementPath != "" {
		if el := findFirst(elements, func(e *Element) bool {
			return e.Path == q.ElementPath
		}); el != nil {
			return matchFor(el, MethodPath)
		}
	}

	if q.ParentPath != "" && (q.ElementText != "" || q.ElementClass != "") {
		if el := findFirst(elements, func(e *Element) bool {
			if e.ParentPath != q.ParentPath {
				return false
			}
			return (q.ElementText != "" && e.Text == q.ElementText) ||
				(q.ElementClass != "" && e.Class == q.ElementClass)
		}); el != nil {
			return matchFor(el, MethodParentPathHeuristic)
		}
	}

	if q.StoredBounds != nil {
		if el := findClosestWithinTolerance(elements, *q.StoredBounds); el != nil {
			textOrClassMatches := (q.ElementText != "" && el.Text == q.ElementText) ||
				(q.ElementClass != "" && el.Class == q.ElementClass)
			if textOrClassMatches {
				return matchFor(el, MethodBoundsProximity)
			}
		}
	}

	return Match{
		Found:   false,
		Method:  MethodNotFound,
		Message: "no matching strategy found an element for the given query",
	}
}

func matchFor(el *Element, method MatchMethod) Match {
	bounds := el.Bounds
	return Match{
		Found:      true,
		Element:    el,
		Bounds:     &bounds,
		Method:     method,
		Confidence: method.confidence(),
	}
}

func findFirst(elements []*Element, pred func(*Element) bool) *Element {
	for _, e := range elements {
		if pred(e) {
			return e
		}
	}
	return nil
}

func findClosestWithinTolerance(elements []*Element, target Bounds) *Element {
	var best *Element
	bestDist := math.MaxFloat64
	for _, e := range elements {
		dist := centerDistance(target, e.Bounds)
		if dist <= boundsProximityTolerancePx && dist < bestDist {
			best, bestDist = e, dist
		}
	}
	return best
}

func centerDistance(a, b Bounds) float64 {
	dx := float64(a.CenterX() - b.CenterX())
	dy := float64(a.CenterY() - b.CenterY())
	return math.Sqrt(dx*dx + dy*dy)
}

// CompareBounds reports whether a and b are "similar" - their centers fall
// within driftSimilarPx of each other - and the pixel distance between
// them. Drift beyond the threshold triggers the executor's Repair Mode.
func CompareBounds(a, b Bounds) (similar bool, pixelDistance float64) {
	dist := centerDistance(a, b)
	return dist <= driftSimilarPx, dist
}
