package adbtransport

import (
	"sync"
	"time"
)

// unlockAttempts tracks failures for one device within the current
// cooldown window.
type unlockAttempts struct {
	failures     int
	cooldownFrom time.Time // zero until the threshold is first hit
}

// unlockTracker enforces the per-SDID unlock-attempt interlock: after
// maxAttempts failures, further attempts are refused until cooldown
// elapses. This is the hard lockout referenced by the Flow Scheduler's
// auto-unlock path (spec §5) as a safety interlock against device
// lockout - repeatedly guessing a PIN can trigger an Android factory
// reset after enough failures.
type unlockTracker struct {
	mu          sync.Mutex
	maxAttempts int
	cooldown    time.Duration
	state       map[string]*unlockAttempts
}

func newUnlockTracker(maxAttempts int, cooldown time.Duration) *unlockTracker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	return &unlockTracker{
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		state:       make(map[string]*unlockAttempts),
	}
}

// CheckAllowed returns ErrUnlockCooldown if sdid is currently cooling down
// from repeated unlock failures.
func (t *unlockTracker) CheckAllowed(sdid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.state[sdid]
	if !ok {
		return nil
	}
	if a.cooldownFrom.IsZero() {
		return nil
	}
	if time.Since(a.cooldownFrom) >= t.cooldown {
		delete(t.state, sdid)
		return nil
	}
	return ErrUnlockCooldown
}

// RecordFailure increments the failure count for sdid, starting the
// cooldown window once maxAttempts is reached.
func (t *unlockTracker) RecordFailure(sdid string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.state[sdid]
	if !ok {
		a = &unlockAttempts{}
		t.state[sdid] = a
	}
	a.failures++
	if a.failures >= t.maxAttempts && a.cooldownFrom.IsZero() {
		a.cooldownFrom = time.Now()
	}
}

// RecordSuccess clears any tracked failures for sdid.
func (t *unlockTracker) RecordSuccess(sdid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, sdid)
}

// CheckUnlockAllowed exposes the interlock to callers outside this package
// (internal/executor's auto-unlock path checks it before each unlock
// sequence).
func (t *Transport) CheckUnlockAllowed(sdid string) error {
	return t.unlock.CheckAllowed(sdid)
}

// RecordUnlockFailure and RecordUnlockSuccess update the interlock after an
// unlock attempt completes.
func (t *Transport) RecordUnlockFailure(sdid string) { t.unlock.RecordFailure(sdid) }
func (t *Transport) RecordUnlockSuccess(sdid string) { t.unlock.RecordSuccess(sdid) }
