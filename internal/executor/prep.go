package executor

import (
	"context"
	"strings"
	"time"
)

// smartLaunchPollInterval and smartLaunchPollAttempts implement §4.6.3's
// "smart launch_app check": before forcing a launch, poll the foreground
// activity briefly in case the target app is already in front.
const (
	smartLaunchPollInterval = 500 * time.Millisecond
	smartLaunchPollAttempts = 16
)

// prepTransport is the primitive surface start-of-flow prep needs.
type prepTransport interface {
	unlockTransport
	captureTransport
}

// prepareDevice implements §4.6.3's wake-then-unlock sequence that runs
// once before a flow's first step.
func prepareDevice(ctx context.Context, t prepTransport, interlock UnlockInterlock, cfg UnlockConfig, sdid, cid string, autoWake, verifyScreenOn bool) error {
	if autoWake {
		if err := ensureScreenOn(ctx, t, cid, 3*time.Second); err != nil {
			if verifyScreenOn {
				return err
			}
		}
	}
	return autoUnlockIfNeeded(ctx, t, interlock, cfg, sdid, cid)
}

// pollForegroundPackage polls briefly for targetPackage to become the
// foreground app, returning whether it already is.
func pollForegroundPackage(ctx context.Context, t prepTransport, cid, targetPackage string) (bool, error) {
	for i := 0; i < smartLaunchPollAttempts; i++ {
		activity, err := currentActivity(ctx, t, cid)
		if err != nil {
			return false, err
		}
		if strings.Contains(activity, targetPackage) {
			return true, nil
		}
		select {
		case <-time.After(smartLaunchPollInterval):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}
