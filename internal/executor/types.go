package executor

import (
	"sync"
	"time"
)

// Mode bundles the four execution mode flags from §4.6 (Learn, Strict,
// Repair, Force), plus StartFromCurrentScreen, into one value a caller
// passes to Run.
type Mode struct {
	Learn                 bool
	Strict                bool
	Repair                bool
	Force                 bool
	StartFromCurrentScreen bool
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Index       int
	StepType    string
	Succeeded   bool
	Skipped     bool
	Error       string
	DurationMs  int64
	Recovered   bool
	RepairedSensorID string
}

// Result is the outcome of one flow run.
type Result struct {
	FlowID             string
	Succeeded          bool
	Steps              []StepResult
	StepsSkipped       int
	NavigationFailures []string
	LearnedScreens     int
	DurationMs         int64
	Error              string
}

// flowContext carries the mutable state threaded through one flow run:
// the variable table, the session sensor-value cache (the values
// capture_sensors recorded this run, read back by ${sensor:id}
// placeholders; a later capture_sensors step for the same sensor resolves
// the element again), and navigation-depth bookkeeping for
// backtrack_after.
type flowContext struct {
	mu sync.Mutex

	vars map[string]string

	// sessionSensors caches a resolved value for a sensor already
	// captured earlier in this run.
	sessionSensors map[string]string

	lastExtracted string

	// navigationDepth counts screen-changing taps since the flow started,
	// for backtrack_after to undo at the end.
	navigationDepth int

	learnedScreens int

	lastScreenshot []byte

	lastScreenID    string
	hasLastScreenID bool
}

func newFlowContext() *flowContext {
	return &flowContext{
		vars:           make(map[string]string),
		sessionSensors: make(map[string]string),
	}
}

func (c *flowContext) setLastScreenshot(png []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastScreenshot = png
}

func (c *flowContext) getLastScreenshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastScreenshot
}

func (c *flowContext) setVar(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = value
}

func (c *flowContext) getVar(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	return v, ok
}

func (c *flowContext) setLastExtracted(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastExtracted = v
}

func (c *flowContext) incrementNavigationDepth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigationDepth++
}

func (c *flowContext) incrementLearnedScreens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.learnedScreens++
}

func (c *flowContext) getLastScreenID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastScreenID, c.hasLastScreenID
}

func (c *flowContext) setLastScreenID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastScreenID = id
	c.hasLastScreenID = true
}

// budget holds the pre-analysis outcome for one run: which step indices
// (in the flattened, top-level sense) are skippable, and the effective
// timeout once dynamic budgeting has been applied.
type budget struct {
	skippable map[int]bool
	timeout   time.Duration
}
