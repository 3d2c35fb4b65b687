package action

import (
	"context"
	"testing"

	"github.com/scryerhq/scryer-core/internal/adbtransport"
	"github.com/scryerhq/scryer-core/internal/store"
)

type call struct {
	method string
	args   []any
}

type fakeTransport struct {
	calls []call
	ui    string
}

func (f *fakeTransport) Tap(_ context.Context, cid string, p adbtransport.Point) error {
	f.calls = append(f.calls, call{"tap", []any{cid, p}})
	return nil
}

func (f *fakeTransport) Swipe(_ context.Context, cid string, p1, p2 adbtransport.Point, durationMs int) error {
	f.calls = append(f.calls, call{"swipe", []any{cid, p1, p2, durationMs}})
	return nil
}

func (f *fakeTransport) TypeText(_ context.Context, cid string, text string) error {
	f.calls = append(f.calls, call{"text", []any{cid, text}})
	return nil
}

func (f *fakeTransport) KeyEvent(_ context.Context, cid string, keycode int) error {
	f.calls = append(f.calls, call{"keyevent", []any{cid, keycode}})
	return nil
}

func (f *fakeTransport) Shell(_ context.Context, cid string, cmd string) (string, error) {
	f.calls = append(f.calls, call{"shell", []any{cid, cmd}})
	return "", nil
}

func (f *fakeTransport) DumpUI(context.Context, string) (string, error) {
	return f.ui, nil
}

func TestExecute_TapByCoordinates(t *testing.T) {
	ft := &fakeTransport{}
	exec := New(ft, nil)

	a := &store.Action{ActionID: "a1", ActionType: "tap", Parameters: map[string]any{"x": float64(100), "y": float64(200)}}
	if err := exec.Execute(context.Background(), "cid-1", a, true); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(ft.calls) != 1 || ft.calls[0].method != "tap" {
		t.Fatalf("calls = %+v, want one tap", ft.calls)
	}
}

func TestExecute_TapByElement(t *testing.T) {
	ft := &fakeTransport{ui: `<?xml version="1.0"?><hierarchy rotation="0">
<node index="0" text="" resource-id="com.app:id/save" class="android.widget.Button" package="com.app" content-desc="" checkable="false" checked="false" clickable="true" enabled="true" focusable="true" focused="false" scrollable="false" long-clickable="false" password="false" selected="false" bounds="[10,20][110,70]" />
</hierarchy>`}
	exec := New(ft, nil)

	a := &store.Action{ActionID: "a1", ActionType: "tap", Parameters: map[string]any{"element_resource_id": "com.app:id/save"}}
	if err := exec.Execute(context.Background(), "cid-1", a, true); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(ft.calls) != 1 {
		t.Fatalf("calls = %+v, want one tap", ft.calls)
	}
	p := ft.calls[0].args[1].(adbtransport.Point)
	if p.X != 60 || p.Y != 45 {
		t.Errorf("tap point = %+v, want center (60,45)", p)
	}
}

func TestExecute_UnknownActionType(t *testing.T) {
	exec := New(&fakeTransport{}, nil)
	a := &store.Action{ActionID: "a1", ActionType: "bogus"}
	if err := exec.Execute(context.Background(), "cid-1", a, true); err == nil {
		t.Fatal("expected error for unknown action type")
	}
}

func TestExecute_Macro_RunsSubActionsInOrder(t *testing.T) {
	ft := &fakeTransport{}
	exec := New(ft, nil)

	macro := &store.Action{
		ActionID:   "m1",
		ActionType: "macro",
		Parameters: map[string]any{
			"steps": []any{
				map[string]any{"action_type": "tap", "parameters": map[string]any{"x": float64(1), "y": float64(2)}},
				map[string]any{"action_type": "keyevent", "parameters": map[string]any{"key_code": float64(4)}},
			},
		},
	}
	if err := exec.Execute(context.Background(), "cid-1", macro, true); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(ft.calls) != 2 || ft.calls[0].method != "tap" || ft.calls[1].method != "keyevent" {
		t.Fatalf("calls = %+v, want [tap, keyevent]", ft.calls)
	}
}

func TestExecute_SkipNavigationSuppressesHook(t *testing.T) {
	ft := &fakeTransport{}
	var hookCalled bool
	exec := New(ft, func(context.Context, string) { hookCalled = true })

	a := &store.Action{ActionID: "a1", ActionType: "tap", Parameters: map[string]any{"x": float64(1), "y": float64(1)}}
	if err := exec.Execute(context.Background(), "cid-1", a, true); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if hookCalled {
		t.Error("expected navigation hook to be suppressed by skipNavigation")
	}

	if err := exec.Execute(context.Background(), "cid-1", a, false); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !hookCalled {
		t.Error("expected navigation hook to fire when skipNavigation is false")
	}
}
