package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scryerhq/scryer-core/internal/adbtransport"
)

// keycodeWakeup is the Android keycode for KEYCODE_WAKEUP.
const keycodeWakeup = 224

// UnlockInterlock is the subset of *adbtransport.Transport's unlock
// bookkeeping the executor needs, narrowed for testability.
type UnlockInterlock interface {
	CheckUnlockAllowed(sdid string) error
	RecordUnlockFailure(sdid string)
	RecordUnlockSuccess(sdid string)
}

// UnlockConfig resolves a device's configured unlock strategy. A device
// with no entry has no configured strategy, and auto_unlock_if_needed
// falls back to a plain swipe.
type UnlockConfig interface {
	PIN(sdid string) (pin string, ok bool)
}

// unlockTransport is the primitive surface auto_unlock_if_needed needs.
type unlockTransport interface {
	Shell(ctx context.Context, cid string, cmd string) (string, error)
	KeyEvent(ctx context.Context, cid string, keycode int) error
	Swipe(ctx context.Context, cid string, p1, p2 adbtransport.Point, durationMs int) error
}

const unlockMaxAttempts = 3

// unlockAttemptDelays are the progressive retry delays from §4.6.6:
// 2s, 3s, 4s.
var unlockAttemptDelays = []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second}

// autoUnlockIfNeeded implements §4.6.6's unified unlock flow.
func autoUnlockIfNeeded(ctx context.Context, t unlockTransport, interlock UnlockInterlock, cfg UnlockConfig, sdid, cid string) error {
	if err := interlock.CheckUnlockAllowed(sdid); err != nil {
		return fmt.Errorf("%w: %w", ErrUnlockCooldown, err)
	}

	locked, err := isLocked(ctx, t, cid)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	pin, hasPIN := "", false
	if cfg != nil {
		pin, hasPIN = cfg.PIN(sdid)
	}

	var lastErr error
	for attempt := 0; attempt < unlockMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(unlockAttemptDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if hasPIN {
			lastErr = unlockWithPIN(ctx, t, cid, pin)
		} else {
			lastErr = unlockSwipe(ctx, t, cid)
		}
		if lastErr == nil {
			stillLocked, checkErr := isLocked(ctx, t, cid)
			if checkErr == nil && !stillLocked {
				interlock.RecordUnlockSuccess(sdid)
				return nil
			}
		}
		interlock.RecordUnlockFailure(sdid)
	}

	if !hasPIN {
		return fmt.Errorf("%w: not_configured", ErrUnlockNotConfigured)
	}
	return fmt.Errorf("%w: unlock_failed: %v", ErrUnlockFailed, lastErr)
}

// isLocked checks Android's window policy dump for the lockscreen flag.
// This string match is a known-fragile heuristic across Android
// versions, but it's the cheapest signal available without an
// accessibility-service companion app.
func isLocked(ctx context.Context, t unlockTransport, cid string) (bool, error) {
	out, err := t.Shell(ctx, cid, "dumpsys window policy")
	if err != nil {
		return false, fmt.Errorf("checking lock state: %w", err)
	}
	return strings.Contains(out, "mDreamingLockscreen=true") || strings.Contains(out, "isStatusBarKeyguard=true"), nil
}

// unlockWithPIN wakes the screen, swipes up to reveal the PIN pad, types
// each digit, then confirms with Enter.
func unlockWithPIN(ctx context.Context, t unlockTransport, cid, pin string) error {
	if err := ensureScreenOn(ctx, t, cid, 3*time.Second); err != nil {
		return err
	}
	if err := unlockSwipe(ctx, t, cid); err != nil {
		return err
	}
	for _, digit := range pin {
		code, err := keycodeForDigit(digit)
		if err != nil {
			return err
		}
		if err := t.KeyEvent(ctx, cid, code); err != nil {
			return err
		}
	}
	return t.KeyEvent(ctx, cid, 66) // KEYCODE_ENTER
}

func keycodeForDigit(r rune) (int, error) {
	n, err := strconv.Atoi(string(r))
	if err != nil {
		return 0, fmt.Errorf("unlock pin: non-digit character %q", r)
	}
	return 7 + n, nil // KEYCODE_0..KEYCODE_9 are 7..16
}

// unlockSwipe wakes the screen then swipes from the bottom third to the
// top, the universal "reveal the lockscreen" gesture.
func unlockSwipe(ctx context.Context, t unlockTransport, cid string) error {
	if err := ensureScreenOn(ctx, t, cid, 3*time.Second); err != nil {
		return err
	}
	return t.Swipe(ctx, cid, adbtransport.Point{X: 540, Y: 1800}, adbtransport.Point{X: 540, Y: 400}, 300)
}

// ensureScreenOn polls the device's wakefulness state, sending
// KEYCODE_WAKEUP and waiting if the screen is asleep.
func ensureScreenOn(ctx context.Context, t unlockTransport, cid string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		out, err := t.Shell(ctx, cid, "dumpsys power")
		if err == nil && strings.Contains(out, "mWakefulness=Awake") {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrWakeFailed
		}
		if err := t.KeyEvent(ctx, cid, keycodeWakeup); err != nil {
			return err
		}
		select {
		case <-time.After(300 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
