package uimodel

import "testing"

func mustParse(t *testing.T) *Element {
	t.Helper()
	root, err := Parse(sampleDump, ParseFull)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return root
}

func TestFind_ResourceIDAndText(t *testing.T) {
	tree := mustParse(t)
	m := Find(tree, Query{ResourceID: "com.app:id/save_button", ElementText: "Save"})
	if !m.Found || m.Method != MethodResourceIDAndText || m.Confidence != 1.0 {
		t.Errorf("Find() = %+v, want found via resource_id_text at confidence 1.0", m)
	}
}

func TestFind_ResourceIDOnlyWhenTextChanged(t *testing.T) {
	tree := mustParse(t)
	m := Find(tree, Query{ResourceID: "com.app:id/save_button", ElementText: "Submit"})
	if !m.Found || m.Method != MethodResourceIDOnly {
		t.Errorf("Find() = %+v, want found via resource_id", m)
	}
}

func TestFind_PathFallback(t *testing.T) {
	tree := mustParse(t)
	m := Find(tree, Query{ElementPath: "1"})
	if !m.Found || m.Method != MethodPath {
		t.Errorf("Find() = %+v, want found via path", m)
	}
}

func TestFind_BoundsProximityGatedBySimilarity(t *testing.T) {
	tree := mustParse(t)
	// Close to the save button's actual bounds, with only its class known -
	// the text/class similarity gate passes on the class match.
	m := Find(tree, Query{ElementClass: "android.widget.Button", StoredBounds: &Bounds{X: 805, Y: 2105, W: 200, H: 100}})
	if !m.Found || m.Method != MethodBoundsProximity {
		t.Errorf("Find() = %+v, want found via bounds_proximity", m)
	}
}

func TestFind_NotFound(t *testing.T) {
	tree := mustParse(t)
	m := Find(tree, Query{ResourceID: "com.app:id/nonexistent"})
	if m.Found || m.Method != MethodNotFound {
		t.Errorf("Find() = %+v, want not found", m)
	}
}

func TestCompareBounds_DriftDetection(t *testing.T) {
	similar, dist := CompareBounds(Bounds{X: 100, Y: 100, W: 200, H: 50}, Bounds{X: 100, Y: 130, W: 200, H: 50})
	if similar {
		t.Errorf("expected 30px drift to not be similar, distance=%.1f", dist)
	}
	if dist < 29 || dist > 31 {
		t.Errorf("expected pixel_distance ~30, got %.1f", dist)
	}

	similar, dist = CompareBounds(Bounds{X: 100, Y: 100, W: 200, H: 50}, Bounds{X: 102, Y: 101, W: 200, H: 50})
	if !similar {
		t.Errorf("expected sub-10px drift to be similar, distance=%.1f", dist)
	}
}
