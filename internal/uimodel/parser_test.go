package uimodel

import "testing"

const sampleDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" clickable="true" enabled="true" bounds="[0,0][1080,2280]">
    <node index="0" text="" resource-id="com.app:id/toolbar" class="android.widget.Toolbar" clickable="false" enabled="true" bounds="[0,0][1080,150]">
      <node index="0" text="Settings" resource-id="com.app:id/title" class="android.widget.TextView" clickable="false" enabled="true" bounds="[40,50][400,100]" />
    </node>
    <node index="1" text="Save" resource-id="com.app:id/save_button" class="android.widget.Button" clickable="true" enabled="true" bounds="[800,2100][1000,2200]" />
  </node>
</hierarchy>`

func TestParse_BuildsTreeWithPaths(t *testing.T) {
	root, err := Parse(sampleDump, ParseFull)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	all := root.Flatten()
	if len(all) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(all))
	}

	save := findFirst(all, func(e *Element) bool { return e.ResourceID == "com.app:id/save_button" })
	if save == nil {
		t.Fatal("expected to find save button")
	}
	if save.Path != "1" {
		t.Errorf("Path = %q, want %q", save.Path, "1")
	}
	if save.Bounds != (Bounds{X: 800, Y: 2100, W: 200, H: 100}) {
		t.Errorf("Bounds = %+v, want {800 2100 200 100}", save.Bounds)
	}
}

func TestParse_PropagatesClickableDownward(t *testing.T) {
	root, err := Parse(sampleDump, ParseFull)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	all := root.Flatten()
	title := findFirst(all, func(e *Element) bool { return e.Text == "Settings" })
	if title == nil {
		t.Fatal("expected to find title element")
	}
	if !title.Clickable {
		t.Error("expected Clickable = true, propagated from the clickable root ancestor")
	}
	if title.ClickableSelf {
		t.Error("expected ClickableSelf = false, this node did not declare clickable itself")
	}
}

func TestParse_BoundsOnlySkipsTextAndResourceID(t *testing.T) {
	root, err := Parse(sampleDump, ParseBoundsOnly)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	all := root.Flatten()
	for _, e := range all {
		if e.Text != "" || e.ResourceID != "" || e.Class != "" {
			t.Errorf("expected bounds-only parse to skip text/resource-id/class, got %+v", e)
		}
	}
}

func TestParse_EmptyDump(t *testing.T) {
	if _, err := Parse("   ", ParseFull); err != ErrEmptyDump {
		t.Errorf("Parse() error = %v, want ErrEmptyDump", err)
	}
}

func TestParse_MalformedXML(t *testing.T) {
	if _, err := Parse("<hierarchy><node", ParseFull); err == nil {
		t.Error("expected an error for malformed XML")
	}
}
