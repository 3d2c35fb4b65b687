package store

import "time"

// SensorSource names the UI element a sensor's value is extracted from.
type SensorSource struct {
	ElementResourceID string `json:"element_resource_id,omitempty"`
	ElementText       string `json:"element_text,omitempty"`
	ElementClass      string `json:"element_class,omitempty"`
	CustomBounds      *Bounds `json:"custom_bounds,omitempty"`
	ElementPath       string `json:"element_path,omitempty"`
}

// Bounds mirrors uimodel.Bounds without importing it, so a sensor's stored
// custom bounds can be persisted independently of any live UI parse.
type Bounds struct {
	X, Y, W, H int
}

// ExtractionRule describes how to turn a matched element's text into a
// sensor value.
type ExtractionRule struct {
	Method        string `json:"method"` // "raw", "regex", "strip_units", ...
	Pattern       string `json:"pattern,omitempty"`
	FallbackValue string `json:"fallback_value,omitempty"`
}

// Sensor is a durable, per-device record describing one extracted value.
//
// SensorID is chosen by the user and stable; DeviceID is the connection ID
// current at creation time and is rebound transparently on migration;
// StableDeviceID never changes.
type Sensor struct {
	SensorID              string         `json:"sensor_id"`
	DeviceID              string         `json:"device_id"`
	StableDeviceID        string         `json:"stable_device_id"`
	FriendlyName          string         `json:"friendly_name"`
	SensorType            string         `json:"sensor_type"` // "sensor" | "binary_sensor"
	DeviceClass           string         `json:"device_class,omitempty"`
	UnitOfMeasurement     string         `json:"unit_of_measurement,omitempty"`
	StateClass            string         `json:"state_class,omitempty"`
	Icon                  string         `json:"icon,omitempty"`
	CurrentValue          string         `json:"current_value,omitempty"`
	LastUpdated           time.Time      `json:"last_updated,omitempty"`
	UpdateIntervalSeconds int            `json:"update_interval_seconds"`
	Source                SensorSource   `json:"source"`
	ExtractionRule        ExtractionRule `json:"extraction_rule"`

	TargetApp            string   `json:"target_app,omitempty"`
	PrerequisiteActions  []string `json:"prerequisite_actions,omitempty"`
	NavigationSequence   []string `json:"navigation_sequence,omitempty"`
	ValidationElement    string   `json:"validation_element,omitempty"`
}

// DeepCopy returns an independent copy, including slice/pointer fields.
func (s *Sensor) DeepCopy() *Sensor {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Source.CustomBounds != nil {
		b := *s.Source.CustomBounds
		cp.Source.CustomBounds = &b
	}
	cp.PrerequisiteActions = append([]string(nil), s.PrerequisiteActions...)
	cp.NavigationSequence = append([]string(nil), s.NavigationSequence...)
	return &cp
}

// Action is a named recorded gesture or macro. Actions surface in MQTT as
// buttons (see internal/mqttbridge).
type Action struct {
	ActionID       string         `json:"action_id"`
	DeviceID       string         `json:"device_id"`
	StableDeviceID string         `json:"stable_device_id"`
	FriendlyName   string         `json:"friendly_name"`
	ActionType     string         `json:"action_type"` // tap, swipe, text, keyevent, launch_app, delay, macro
	Parameters     map[string]any `json:"parameters,omitempty"`
}

// DeepCopy returns an independent copy.
func (a *Action) DeepCopy() *Action {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Parameters != nil {
		cp.Parameters = make(map[string]any, len(a.Parameters))
		for k, v := range a.Parameters {
			cp.Parameters[k] = v
		}
	}
	return &cp
}

// Step is one element of a Flow's step list. It is a tagged union over the
// step vocabulary in §4.6: most fields are optional and only meaningful for
// certain StepTypes. Conditional/loop steps recurse via TrueSteps/
// FalseSteps/LoopSteps.
type Step struct {
	StepType string `json:"step_type"`

	// Common addressing/parameters, populated depending on StepType.
	Element          *SensorSource  `json:"element,omitempty"`
	X, Y             int            `json:"x,omitempty"`
	X2, Y2           int            `json:"x2,omitempty"`
	Text             string         `json:"text,omitempty"`
	KeyCode          string         `json:"key_code,omitempty"`
	Package          string         `json:"package,omitempty"`
	DurationMs       int            `json:"duration_ms,omitempty"`
	SensorIDs        []string       `json:"sensor_ids,omitempty"`
	VariableName     string         `json:"variable_name,omitempty"`
	VariableValue    string         `json:"variable_value,omitempty"`
	IncrementBy      float64        `json:"increment_by,omitempty"`
	Condition        string         `json:"condition,omitempty"`
	Iterations       int            `json:"iterations,omitempty"`
	LoopVariable     string         `json:"loop_variable,omitempty"`
	ActionID         string         `json:"action_id,omitempty"`
	TimestampElement *SensorSource  `json:"timestamp_element,omitempty"`
	ValidateTimestamp bool          `json:"validate_timestamp,omitempty"`

	// State validation / recovery.
	ExpectedActivity     string   `json:"expected_activity,omitempty"`
	ExpectedUIElements   []string `json:"expected_ui_elements,omitempty"`
	ExpectedScreenshot   string   `json:"expected_screenshot,omitempty"`
	StateMatchThreshold  float64  `json:"state_match_threshold,omitempty"`
	ValidateState        bool     `json:"validate_state,omitempty"`
	RecoveryAction       string   `json:"recovery_action,omitempty"`
	ScreenActivity       string   `json:"screen_activity,omitempty"`
	ScreenPackage        string   `json:"screen_package,omitempty"`
	NavigationRequired   bool     `json:"navigation_required,omitempty"`
	ExpectedScreenID     string   `json:"expected_screen_id,omitempty"`
	UIElementsRequired   int      `json:"ui_elements_required,omitempty"`

	// Retry envelope.
	RetryOnFailure bool `json:"retry_on_failure,omitempty"`
	MaxRetries     int  `json:"max_retries,omitempty"`

	// Recursive branches.
	TrueSteps  []Step `json:"true_steps,omitempty"`
	FalseSteps []Step `json:"false_steps,omitempty"`
	LoopSteps  []Step `json:"loop_steps,omitempty"`
}

// Flow is an ordered, repeatable sequence of steps executed against one
// device.
type Flow struct {
	FlowID                string    `json:"flow_id"`
	DeviceID              string    `json:"device_id"`
	StableDeviceID        string    `json:"stable_device_id"`
	Name                  string    `json:"name"`
	Steps                 []Step    `json:"steps"`
	UpdateIntervalSeconds int       `json:"update_interval_seconds"`
	Enabled               bool      `json:"enabled"`
	StopOnError           bool      `json:"stop_on_error"`
	MaxFlowRetries        int       `json:"max_flow_retries"`
	FlowTimeout           int       `json:"flow_timeout"` // seconds; executor may raise per §4.6.2
	PreferredExecutor     string    `json:"preferred_executor,omitempty"` // server, android, auto

	AutoWakeBefore  bool `json:"auto_wake_before"`
	AutoSleepAfter  bool `json:"auto_sleep_after"`
	VerifyScreenOn  bool `json:"verify_screen_on"`

	BacktrackAfter bool `json:"backtrack_after"`

	// Runtime counters, updated after each execution.
	RunCount      int       `json:"run_count"`
	FailCount     int       `json:"fail_count"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string    `json:"last_run_status,omitempty"`
}

// DeepCopy returns an independent copy of the flow and its step tree.
func (f *Flow) DeepCopy() *Flow {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Steps = deepCopySteps(f.Steps)
	return &cp
}

func deepCopySteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		cp := s
		cp.ExpectedUIElements = append([]string(nil), s.ExpectedUIElements...)
		cp.SensorIDs = append([]string(nil), s.SensorIDs...)
		cp.TrueSteps = deepCopySteps(s.TrueSteps)
		cp.FalseSteps = deepCopySteps(s.FalseSteps)
		cp.LoopSteps = deepCopySteps(s.LoopSteps)
		out[i] = cp
	}
	return out
}

// deviceFile is the on-disk shape for one device's JSON store: one file per
// type per device, per the {type}_{sanitize(SDID)}.json naming convention.
type deviceFile[T any] struct {
	StableDeviceID string           `json:"stable_device_id"`
	Records        map[string]T     `json:"records"`
}
