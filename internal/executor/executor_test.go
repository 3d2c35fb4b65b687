package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/scryerhq/scryer-core/internal/adbtransport"
	"github.com/scryerhq/scryer-core/internal/mqttbridge"
	"github.com/scryerhq/scryer-core/internal/store"
)

const sampleUIDump = `<?xml version="1.0"?>
<hierarchy rotation="0">
  <node index="0" text="72%" resource-id="com.example.battery:id/level" class="android.widget.TextView"
    package="com.example.battery" content-desc="" checkable="false" checked="false" clickable="false"
    enabled="true" focusable="false" focused="false" scrollable="false" long-clickable="false"
    password="false" selected="false" bounds="[10,20][110,70]" />
</hierarchy>`

type fakeTransport struct {
	shellResponses map[string]string
	dumpUI         string
	screenshot     []byte
	calls          []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{shellResponses: make(map[string]string), dumpUI: sampleUIDump}
}

func (f *fakeTransport) Shell(_ context.Context, _ string, cmd string) (string, error) {
	f.calls = append(f.calls, "shell:"+cmd)
	if resp, ok := f.shellResponses[cmd]; ok {
		return resp, nil
	}
	return "", nil
}

func (f *fakeTransport) Screenshot(_ context.Context, _ string) ([]byte, error) {
	return f.screenshot, nil
}

func (f *fakeTransport) DumpUI(_ context.Context, _ string) (string, error) {
	return f.dumpUI, nil
}

func (f *fakeTransport) Tap(_ context.Context, _ string, p adbtransport.Point) error {
	f.calls = append(f.calls, "tap")
	return nil
}

func (f *fakeTransport) Swipe(_ context.Context, _ string, p1, p2 adbtransport.Point, durationMs int) error {
	f.calls = append(f.calls, "swipe")
	return nil
}

func (f *fakeTransport) TypeText(_ context.Context, _ string, text string) error {
	f.calls = append(f.calls, "type:"+text)
	return nil
}

func (f *fakeTransport) KeyEvent(_ context.Context, _ string, keycode int) error {
	f.calls = append(f.calls, "keyevent")
	return nil
}

type fakeFlowStore struct {
	sensors  map[string]*store.Sensor
	actions  map[string]*store.Action
	recorded []string
	ranFlow  bool
}

func newFakeFlowStore() *fakeFlowStore {
	return &fakeFlowStore{sensors: make(map[string]*store.Sensor), actions: make(map[string]*store.Action)}
}

func (f *fakeFlowStore) GetSensor(_ context.Context, _, sensorID string) (*store.Sensor, error) {
	s, ok := f.sensors[sensorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeFlowStore) RecordSensorValue(_, sensorID, value string, _ time.Time) error {
	f.recorded = append(f.recorded, sensorID+"="+value)
	if s, ok := f.sensors[sensorID]; ok {
		s.CurrentValue = value
	}
	return nil
}

func (f *fakeFlowStore) UpsertSensor(_ string, sensor *store.Sensor) error {
	f.sensors[sensor.SensorID] = sensor
	return nil
}

func (f *fakeFlowStore) GetAction(_ context.Context, _, actionID string) (*store.Action, error) {
	a, ok := f.actions[actionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeFlowStore) RecordFlowRun(_, _ string, _ bool, _ time.Time) error {
	f.ranFlow = true
	return nil
}

type fakeInterlock struct{}

func (fakeInterlock) CheckUnlockAllowed(string) error { return nil }
func (fakeInterlock) RecordUnlockFailure(string)      {}
func (fakeInterlock) RecordUnlockSuccess(string)      {}

type fakePublisher struct{}

func (fakePublisher) Publish(string, []byte, byte, bool) error { return nil }

func (fakePublisher) Subscribe(string, byte, func(string, []byte) error) error { return nil }

func newTestExecutor(transport *fakeTransport, st *fakeFlowStore) *Executor {
	bridge := mqttbridge.New(fakePublisher{}, "homeassistant")
	return New(transport, st, bridge, nil, nil, fakeInterlock{}, nil)
}

func TestRun_TapThenCaptureSensors(t *testing.T) {
	transport := newFakeTransport()
	st := newFakeFlowStore()
	st.sensors["battery_level"] = &store.Sensor{
		SensorID:              "battery_level",
		SensorType:            "sensor",
		UpdateIntervalSeconds: 60,
		Source:                store.SensorSource{ElementResourceID: "com.example.battery:id/level"},
		ExtractionRule:        store.ExtractionRule{Method: "strip_units"},
	}

	exec := newTestExecutor(transport, st)
	flow := &store.Flow{
		FlowID: "flow-1",
		Steps: []store.Step{
			{StepType: "tap", X: 50, Y: 50},
			{StepType: "capture_sensors", SensorIDs: []string{"battery_level"}},
		},
		FlowTimeout: 30,
	}

	result, err := exec.Run(context.Background(), "sdid-1", "cid-1", flow, Mode{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if len(st.recorded) != 1 || st.recorded[0] != "battery_level=72" {
		t.Fatalf("expected battery_level=72 recorded, got %v", st.recorded)
	}
	if !st.ranFlow {
		t.Fatal("expected RecordFlowRun to be called")
	}
}

type fakeTimeseriesWriter struct {
	readings []string
}

func (f *fakeTimeseriesWriter) WriteSensorReading(sdid, sensorID string, value float64) {
	f.readings = append(f.readings, fmt.Sprintf("%s/%s=%g", sdid, sensorID, value))
}

func TestRun_CaptureSensorsWritesTimeseries(t *testing.T) {
	transport := newFakeTransport()
	st := newFakeFlowStore()
	st.sensors["battery_level"] = &store.Sensor{
		SensorID:              "battery_level",
		StableDeviceID:        "sdid-1",
		SensorType:            "sensor",
		UpdateIntervalSeconds: 60,
		Source:                store.SensorSource{ElementResourceID: "com.example.battery:id/level"},
		ExtractionRule:        store.ExtractionRule{Method: "strip_units"},
	}

	exec := newTestExecutor(transport, st)
	ts := &fakeTimeseriesWriter{}
	exec.SetTimeseriesWriter(ts)

	flow := &store.Flow{
		FlowID:      "flow-1",
		Steps:       []store.Step{{StepType: "capture_sensors", SensorIDs: []string{"battery_level"}}},
		FlowTimeout: 30,
	}

	if _, err := exec.Run(context.Background(), "sdid-1", "cid-1", flow, Mode{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(ts.readings) != 1 || ts.readings[0] != "sdid-1/battery_level=72" {
		t.Fatalf("expected one timeseries reading sdid-1/battery_level=72, got %v", ts.readings)
	}
}

func TestRun_CaptureSensorsSkipsTimeseriesWhenUnset(t *testing.T) {
	transport := newFakeTransport()
	st := newFakeFlowStore()
	st.sensors["battery_level"] = &store.Sensor{
		SensorID:       "battery_level",
		StableDeviceID: "sdid-1",
		SensorType:     "sensor",
		Source:         store.SensorSource{ElementResourceID: "com.example.battery:id/level"},
		ExtractionRule: store.ExtractionRule{Method: "strip_units"},
	}
	exec := newTestExecutor(transport, st)

	flow := &store.Flow{
		FlowID:      "flow-3",
		Steps:       []store.Step{{StepType: "capture_sensors", SensorIDs: []string{"battery_level"}}},
		FlowTimeout: 30,
	}

	if _, err := exec.Run(context.Background(), "sdid-1", "cid-1", flow, Mode{}); err != nil {
		t.Fatalf("Run returned error (no timeseries writer should still succeed): %v", err)
	}
}

func TestRun_SetVariableAndConditional(t *testing.T) {
	transport := newFakeTransport()
	st := newFakeFlowStore()
	exec := newTestExecutor(transport, st)

	flow := &store.Flow{
		FlowID: "flow-2",
		Steps: []store.Step{
			{StepType: "set_variable", VariableName: "mode", VariableValue: "on"},
			{
				StepType:  "conditional",
				Condition: "var:mode==on",
				TrueSteps: []store.Step{{StepType: "tap", X: 1, Y: 1}},
				FalseSteps: []store.Step{{StepType: "tap", X: 2, Y: 2}},
			},
		},
		FlowTimeout: 30,
	}

	result, err := exec.Run(context.Background(), "sdid-2", "cid-2", flow, Mode{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected success, got %q", result.Error)
	}

	taps := 0
	for _, c := range transport.calls {
		if c == "tap" {
			taps++
		}
	}
	if taps != 1 {
		t.Fatalf("expected exactly one tap from the true branch, got %d", taps)
	}
}

func TestRun_SkipStepRecoveryMasksFailure(t *testing.T) {
	transport := newFakeTransport()
	st := newFakeFlowStore()
	exec := newTestExecutor(transport, st)

	flow := &store.Flow{
		FlowID: "flow-3",
		Steps: []store.Step{
			{StepType: "execute_action", ActionID: "missing", RecoveryAction: "skip_step"},
		},
		FlowTimeout: 30,
	}

	result, err := exec.Run(context.Background(), "sdid-3", "cid-3", flow, Mode{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected skip_step to mask the failure, got %q", result.Error)
	}
	if !result.Steps[0].Recovered {
		t.Fatal("expected the step to be marked recovered")
	}
}

func TestComputeSkippable_SkipsCaptureAndPrecedingNavigationWhenNotDue(t *testing.T) {
	now := time.Now()
	sensors := map[string]*store.Sensor{
		"s1": {SensorID: "s1", UpdateIntervalSeconds: 300, LastUpdated: now.Add(-10 * time.Second)},
	}
	lookup := func(id string) (*store.Sensor, bool) { s, ok := sensors[id]; return s, ok }

	steps := []store.Step{
		{StepType: "tap", X: 1, Y: 1},
		{StepType: "capture_sensors", SensorIDs: []string{"s1"}},
	}

	skip := computeSkippable(steps, lookup, now, false)
	if !skip[0] || !skip[1] {
		t.Fatalf("expected both steps skippable, got %v", skip)
	}

	skipForced := computeSkippable(steps, lookup, now, true)
	if len(skipForced) != 0 {
		t.Fatalf("expected force mode to skip nothing, got %v", skipForced)
	}
}
