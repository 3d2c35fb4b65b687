package adbtransport

import (
	"context"
	"testing"
	"time"

	"github.com/scryerhq/scryer-core/internal/infrastructure/config"
)

func TestUnlockTracker_CooldownAfterMaxAttempts(t *testing.T) {
	tr := newUnlockTracker(2, time.Hour)

	if err := tr.CheckAllowed("sdid-1"); err != nil {
		t.Fatalf("expected no cooldown initially, got %v", err)
	}

	tr.RecordFailure("sdid-1")
	if err := tr.CheckAllowed("sdid-1"); err != nil {
		t.Fatalf("expected no cooldown after 1 failure, got %v", err)
	}

	tr.RecordFailure("sdid-1")
	if err := tr.CheckAllowed("sdid-1"); err != ErrUnlockCooldown {
		t.Fatalf("expected ErrUnlockCooldown after 2 failures, got %v", err)
	}
}

func TestUnlockTracker_SuccessClearsFailures(t *testing.T) {
	tr := newUnlockTracker(2, time.Hour)

	tr.RecordFailure("sdid-1")
	tr.RecordSuccess("sdid-1")
	tr.RecordFailure("sdid-1")

	if err := tr.CheckAllowed("sdid-1"); err != nil {
		t.Fatalf("expected success to reset failure count, got %v", err)
	}
}

func TestTrimToHierarchy(t *testing.T) {
	raw := "garbage-prefix<?xml version='1.0'?><hierarchy></hierarchy>trailing-garbage"
	got := trimToHierarchy(raw)
	want := "<?xml version='1.0'?><hierarchy></hierarchy>"
	if got != want {
		t.Errorf("trimToHierarchy() = %q, want %q", got, want)
	}
}

func TestTransport_ScreenshotCachesWithinTTL(t *testing.T) {
	transport := New(config.ADBConfig{Binary: "adb"}, nil)

	calls := 0
	transport.backends[BackendSubprocess] = &countingBackend{Backend: transport.backends[BackendSubprocess], onExecOut: func() { calls++ }}
	transport.backends[BackendPersistentShell] = &countingBackend{Backend: transport.backends[BackendPersistentShell], onExecOut: func() { calls++ }}
	transport.backends[BackendLibrary] = &countingBackend{Backend: transport.backends[BackendLibrary], onExecOut: func() { calls++ }}

	transport.shotCache["cid-1"] = screenshotCacheEntry{png: makeFakePNG(), at: time.Now()}

	got, err := transport.Screenshot(context.Background(), "cid-1")
	if err != nil {
		t.Fatalf("Screenshot() error = %v", err)
	}
	if len(got) < captureSanityFloor {
		t.Fatalf("expected cached screenshot to satisfy sanity floor")
	}
	if calls != 0 {
		t.Errorf("expected cache hit to avoid backend calls, got %d calls", calls)
	}
}

func makeFakePNG() []byte {
	return make([]byte, captureSanityFloor+10)
}

// countingBackend wraps a Backend to count ExecOut invocations without
// replacing its other behaviour.
type countingBackend struct {
	Backend
	onExecOut func()
}

func (c *countingBackend) ExecOut(ctx context.Context, cid string, cmd string) ([]byte, error) {
	c.onExecOut()
	return c.Backend.ExecOut(ctx, cid, cmd)
}
