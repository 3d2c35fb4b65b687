package executor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scryerhq/scryer-core/internal/mqttbridge"
	"github.com/scryerhq/scryer-core/internal/store"
	"github.com/scryerhq/scryer-core/internal/uimodel"
)

// captureTransport is the primitive surface capture_sensors needs.
type captureTransport interface {
	Shell(ctx context.Context, cid string, cmd string) (string, error)
	Screenshot(ctx context.Context, cid string) ([]byte, error)
	DumpUI(ctx context.Context, cid string) (string, error)
}

// sensorStore is the subset of *store.Store capture_sensors needs.
type sensorStore interface {
	GetSensor(ctx context.Context, anyID, sensorID string) (*store.Sensor, error)
	RecordSensorValue(sdid, sensorID, value string, at time.Time) error
	UpsertSensor(sdid string, sensor *store.Sensor) error
}

// boundsDriftThresholdPx is repair mode's trigger: a bounds-proximity
// match whose pixel distance from the stored bounds exceeds this is
// assumed to reflect a genuine UI layout change, not measurement noise.
const boundsDriftThresholdPx = 10.0

// discoveryPublisher is the subset of *mqttbridge.Bridge needed to announce
// newly-seen sensors before publishing their state.
type discoveryPublisher interface {
	PublishSensorDiscovery(s *store.Sensor) error
	PublishStateBatch(updates []mqttbridge.SensorUpdate) mqttbridge.BatchResult
}

// captureResult is what a capture_sensors step reports back into the step
// loop for logging and §4.6.4.e learn-mode feed decisions.
type captureResult struct {
	Captured []string
	Skipped  []string
	Failed   []string
}

// captureSensors implements the 8-step §4.6.5 pipeline: dismiss the
// notification shade if it has focus, confirm the expected screen, fetch one
// UI dump shared by every sensor in the step (no screenshot is taken),
// resolve each sensor's
// value from its extraction rule, persist it, publish discovery for any
// sensor not seen before, then batch-publish state.
func captureSensors(ctx context.Context, t captureTransport, st sensorStore, bridge discoveryPublisher, known *knownSensorSet, ts TimeseriesWriter, fc *flowContext, cid string, step store.Step, repair bool) (captureResult, error) {
	var result captureResult

	// Step 1: when the notification shade or status bar holds window focus,
	// dismiss it so it doesn't occlude the content sensors read from. Any
	// other focused window is left alone.
	if focus, err := t.Shell(ctx, cid, "dumpsys window | grep mCurrentFocus"); err == nil &&
		(strings.Contains(focus, "NotificationShade") || strings.Contains(focus, "StatusBar")) {
		_, _ = t.Shell(ctx, cid, "input keyevent 4") // KEYCODE_BACK
	}

	// Step 2: confirm we're on the expected screen when the step names one.
	if step.ScreenActivity != "" {
		activity, err := currentActivity(ctx, t, cid)
		if err != nil {
			return result, err
		}
		if !strings.Contains(activity, step.ScreenActivity) {
			return result, fmt.Errorf("capture_sensors: expected activity %q, got %q", step.ScreenActivity, activity)
		}
	}

	// Step 3: one shared UI dump for every sensor in this step; no
	// screenshot is fetched.
	xml, err := t.DumpUI(ctx, cid)
	if err != nil {
		return result, fmt.Errorf("capture_sensors: dumping ui: %w", err)
	}
	tree, err := uimodel.Parse(xml, uimodel.ParseFull)
	if err != nil {
		return result, fmt.Errorf("capture_sensors: parsing ui dump: %w", err)
	}

	var updates []mqttbridge.SensorUpdate
	now := time.Now()

	// Step 4/5: resolve each sensor, extract, persist.
	for _, sensorID := range step.SensorIDs {
		sensor, err := st.GetSensor(ctx, cid, sensorID)
		if err != nil {
			result.Failed = append(result.Failed, sensorID)
			continue
		}

		value, match, ok := extractSensorValue(tree, sensor)
		if !ok {
			result.Failed = append(result.Failed, sensorID)
			continue
		}

		if repair && match.Found && match.Method == uimodel.MethodBoundsProximity && match.Bounds != nil {
			repairSensorBounds(st, cid, sensor, *match.Bounds)
		}

		fc.sessionSensors[sensorID] = value
		fc.setLastExtracted(value)
		if err := st.RecordSensorValue(cid, sensorID, value, now); err != nil {
			result.Failed = append(result.Failed, sensorID)
			continue
		}

		if ts != nil {
			if numeric, err := strconv.ParseFloat(value, 64); err == nil {
				ts.WriteSensorReading(sensor.StableDeviceID, sensorID, numeric)
			}
		}

		// Step 6: publish discovery the first time this sensor is seen
		// this process lifetime.
		if !known.seen(sensor.SensorID) {
			if err := bridge.PublishSensorDiscovery(sensor); err == nil {
				known.mark(sensor.SensorID)
			}
		}

		sensor.CurrentValue = value
		sensor.LastUpdated = now
		updates = append(updates, mqttbridge.SensorUpdate{Sensor: sensor, Value: value})
		result.Captured = append(result.Captured, sensorID)
	}

	// Step 7: batch-publish state for everything captured this round.
	if len(updates) > 0 {
		bridge.PublishStateBatch(updates)
	}

	// Step 8: a capture step that captured nothing and skipped nothing is a
	// hard failure — every named sensor failed to resolve.
	if len(result.Captured) == 0 && len(result.Skipped) == 0 {
		return result, fmt.Errorf("capture_sensors: all %d sensors failed to resolve", len(step.SensorIDs))
	}
	return result, nil
}

// knownSensorSet tracks which sensors have already had discovery published
// this process lifetime, so repeated capture_sensors runs don't republish
// unchanged discovery payloads every cycle.
type knownSensorSet struct {
	ids map[string]bool
}

func newKnownSensorSet() *knownSensorSet {
	return &knownSensorSet{ids: make(map[string]bool)}
}

func (k *knownSensorSet) seen(sensorID string) bool { return k.ids[sensorID] }
func (k *knownSensorSet) mark(sensorID string)      { k.ids[sensorID] = true }

// extractSensorValue applies a sensor's Source selector and ExtractionRule
// against a freshly parsed UI tree, returning the resolving Match so
// repair mode can inspect how confidently the element was found.
func extractSensorValue(tree *uimodel.Element, sensor *store.Sensor) (string, uimodel.Match, bool) {
	q := uimodel.Query{
		ResourceID:   sensor.Source.ElementResourceID,
		ElementText:  sensor.Source.ElementText,
		ElementClass: sensor.Source.ElementClass,
		ElementPath:  sensor.Source.ElementPath,
	}
	if sensor.Source.CustomBounds != nil {
		b := uimodel.Bounds{X: sensor.Source.CustomBounds.X, Y: sensor.Source.CustomBounds.Y, W: sensor.Source.CustomBounds.W, H: sensor.Source.CustomBounds.H}
		q.StoredBounds = &b
	}

	match := uimodel.Find(tree, q)
	if !match.Found {
		if sensor.ExtractionRule.FallbackValue != "" {
			return sensor.ExtractionRule.FallbackValue, match, true
		}
		return "", match, false
	}

	return applyExtractionRule(match.Element.Text, sensor.ExtractionRule), match, true
}

// repairSensorBounds persists a sensor's updated element bounds when its
// bounds-proximity match has drifted past the repair threshold —
// evidence the UI shifted since the bounds were recorded.
func repairSensorBounds(st sensorStore, sdid string, sensor *store.Sensor, found uimodel.Bounds) {
	if sensor.Source.CustomBounds == nil {
		return
	}
	stored := uimodel.Bounds{X: sensor.Source.CustomBounds.X, Y: sensor.Source.CustomBounds.Y, W: sensor.Source.CustomBounds.W, H: sensor.Source.CustomBounds.H}
	if similar, dist := uimodel.CompareBounds(stored, found); similar && dist <= boundsDriftThresholdPx {
		return
	}
	updated := sensor.DeepCopy()
	updated.Source.CustomBounds = &store.Bounds{X: found.X, Y: found.Y, W: found.W, H: found.H}
	_ = st.UpsertSensor(sdid, updated)
}

var stripUnitsPattern = regexp.MustCompile(`[^0-9.\-]`)

func applyExtractionRule(raw string, rule store.ExtractionRule) string {
	switch rule.Method {
	case "regex":
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return raw
		}
		if m := re.FindStringSubmatch(raw); len(m) > 1 {
			return m[1]
		} else if len(m) == 1 {
			return m[0]
		}
		return raw
	case "strip_units":
		return strings.TrimSpace(stripUnitsPattern.ReplaceAllString(raw, ""))
	default: // "raw"
		return strings.TrimSpace(raw)
	}
}

// parseUITree wraps uimodel.Parse for callers that don't need the
// bounds-only fast path.
func parseUITree(xml string) (*uimodel.Element, error) {
	return uimodel.Parse(xml, uimodel.ParseFull)
}

// currentActivity shells out to dumpsys to find the focused activity's
// component name.
var focusedActivityPattern = regexp.MustCompile(`mResumedActivity: ActivityRecord\{[^ ]+ [^ ]+ ([^ ]+)`)

func currentActivity(ctx context.Context, t captureTransport, cid string) (string, error) {
	out, err := t.Shell(ctx, cid, "dumpsys activity activities")
	if err != nil {
		return "", fmt.Errorf("querying current activity: %w", err)
	}
	if m := focusedActivityPattern.FindStringSubmatch(out); len(m) == 2 {
		return m[1], nil
	}
	return "", nil
}
