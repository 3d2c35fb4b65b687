package executor

import (
	"time"

	"github.com/scryerhq/scryer-core/internal/store"
)

// skippableBoundarySteps are the step types that stop the backward walk
// marking preceding navigation steps skippable: crossing one of these
// means we'd be navigating to a genuinely different screen, which must
// run regardless of any later capture_sensors step's interval.
var skippableBoundarySteps = map[string]bool{
	"capture_sensors": true,
	"launch_app":      true,
	"restart_app":     true,
	"go_home":         true,
}

// navigationStepSkippable are the step types eligible to be marked
// skippable by the backward walk from a not-due capture_sensors step.
var navigationStepSkippable = map[string]bool{
	"tap":   true,
	"swipe": true,
	"wait":  true,
}

// sensorLookup resolves a sensor by ID for pre-analysis interval
// checking. Implemented by *store.Store in production; narrowed here so
// tests don't need a real store.
type sensorLookup func(sensorID string) (*store.Sensor, bool)

// computeSkippable implements §4.6.2 step 1: a capture_sensors step is
// skippable if every one of its sensors was updated within its own
// interval; skippability then propagates backward over tap/swipe/wait
// steps until a boundary step is hit. Force mode short-circuits to "skip
// nothing".
func computeSkippable(steps []store.Step, lookup sensorLookup, now time.Time, force bool) map[int]bool {
	skippable := make(map[int]bool)
	if force {
		return skippable
	}

	for i, step := range steps {
		if step.StepType != "capture_sensors" {
			continue
		}
		if !allSensorsDue(step.SensorIDs, lookup, now) {
			continue
		}
		skippable[i] = true

		for j := i - 1; j >= 0; j-- {
			if skippableBoundarySteps[steps[j].StepType] {
				break
			}
			if !navigationStepSkippable[steps[j].StepType] {
				continue
			}
			skippable[j] = true
		}
	}
	return skippable
}

// allSensorsDue reports whether every sensor in ids has NOT yet reached
// its update interval — i.e. the capture step can be skipped because
// nothing in it is due for a refresh.
func allSensorsDue(ids []string, lookup sensorLookup, now time.Time) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		sensor, ok := lookup(id)
		if !ok {
			return false
		}
		if sensor.LastUpdated.IsZero() {
			return false
		}
		interval := time.Duration(sensor.UpdateIntervalSeconds) * time.Second
		if now.Sub(sensor.LastUpdated) >= interval {
			return false
		}
	}
	return true
}

const (
	baseTimeout           = 30 * time.Second
	perNavigationStep     = 2 * time.Second
	perCaptureStep        = 5 * time.Second
	perSensorInCapture    = 1 * time.Second
	perLaunchStep         = 5 * time.Second
)

var navigationStepTypes = map[string]bool{
	"tap": true, "swipe": true, "go_home": true, "go_back": true, "pull_refresh": true,
}

var launchStepTypes = map[string]bool{
	"launch_app": true, "restart_app": true,
}

// computeDynamicTimeout implements §4.6.2 step 2: a generous per-flow
// budget derived from the step mix, raising the configured timeout when
// the flow's shape demands more time than the static default allows.
func computeDynamicTimeout(steps []store.Step, configured time.Duration) time.Duration {
	dynamic := baseTimeout
	for _, step := range steps {
		switch {
		case navigationStepTypes[step.StepType]:
			dynamic += perNavigationStep
		case step.StepType == "capture_sensors":
			dynamic += perCaptureStep
			dynamic += time.Duration(len(step.SensorIDs)) * perSensorInCapture
		case launchStepTypes[step.StepType]:
			dynamic += perLaunchStep
		}
	}
	if dynamic > configured {
		return dynamic
	}
	return configured
}
