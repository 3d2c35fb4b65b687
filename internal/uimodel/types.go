package uimodel

// Bounds is a rectangle in device pixels, as reported by uiautomator in
// the form "[left,top][right,bottom]".
type Bounds struct {
	X, Y, W, H int
}

// CenterX and CenterY return the midpoint of the rectangle, used by
// bounds-proximity matching and drift measurement.
func (b Bounds) CenterX() int { return b.X + b.W/2 }
func (b Bounds) CenterY() int { return b.Y + b.H/2 }

// Element is one node of a parsed UI hierarchy.
type Element struct {
	Text         string
	ResourceID   string // package-qualified, e.g. "com.app:id/button"
	Class        string
	ContentDesc  string
	Bounds       Bounds
	Path         string // child-index chain from root, e.g. "0/2/1/3"
	ParentPath   string
	Depth        int
	SiblingIndex int
	ElementIndex int // global DFS order

	Clickable     bool // propagated downward from any ancestor
	ClickableSelf bool // this node's own clickable attribute
	Visible       bool
	Enabled       bool
	Focused       bool
	Scrollable    bool

	Children []*Element
}

// Flatten returns every element in the subtree rooted at e, in DFS order.
func (e *Element) Flatten() []*Element {
	if e == nil {
		return nil
	}
	out := []*Element{e}
	for _, child := range e.Children {
		out = append(out, child.Flatten()...)
	}
	return out
}

// Query describes the signals a caller has about an element it wants to
// find again. Any subset of fields may be populated; the Finder tries
// each matching strategy in confidence order and stops at the first hit.
type Query struct {
	ResourceID   string
	ElementText  string
	ElementClass string
	ElementPath  string
	ParentPath   string
	StoredBounds *Bounds
}

// MatchMethod names which strategy produced a Match.
type MatchMethod string

const (
	MethodResourceIDAndText  MatchMethod = "resource_id_text"
	MethodResourceIDOnly     MatchMethod = "resource_id"
	MethodResourceIDAndClass MatchMethod = "resource_id_class"
	MethodTextAndClass       MatchMethod = "text_class"
	MethodPath               MatchMethod = "path"
	MethodParentPathHeuristic MatchMethod = "parent_path_heuristic"
	MethodBoundsProximity    MatchMethod = "bounds_proximity"
	MethodNotFound           MatchMethod = "not_found"
)

// confidence returns the fixed confidence score for a matching method, per
// the priority order in §4.3.
func (m MatchMethod) confidence() float64 {
	switch m {
	case MethodResourceIDAndText:
		return 1.0
	case MethodResourceIDOnly:
		return 0.9
	case MethodResourceIDAndClass:
		return 0.85
	case MethodTextAndClass:
		return 0.75
	case MethodPath:
		return 0.7
	case MethodParentPathHeuristic:
		return 0.6
	case MethodBoundsProximity:
		return 0.5
	default:
		return 0
	}
}

// Match is the result of a Finder lookup.
type Match struct {
	Found      bool
	Element    *Element
	Bounds     *Bounds
	Method     MatchMethod
	Confidence float64
	Message    string
}
