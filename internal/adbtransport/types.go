package adbtransport

import (
	"context"
	"time"
)

// BackendKind identifies one of the three transport implementations.
type BackendKind string

const (
	BackendSubprocess      BackendKind = "subprocess"
	BackendPersistentShell BackendKind = "persistent_shell"
	BackendLibrary         BackendKind = "library"
)

// PrimitiveFamily groups related primitives for the purposes of adaptive
// backend selection - a device might be faster at screenshots over one
// backend but faster at shell commands over another.
type PrimitiveFamily string

const (
	FamilyScreenshot PrimitiveFamily = "screenshot"
	FamilyShell      PrimitiveFamily = "shell"
)

// captureSanityFloor is the minimum byte length a screenshot result must
// have to be considered real image data rather than a truncated/garbled
// capture.
const captureSanityFloor = 1000

// screenshotCacheTTL governs how long a captured screenshot is reused for
// rapid consecutive calls targeting the same device.
const screenshotCacheTTL = 250 * time.Millisecond

// Backend is the interface each of the three transport implementations
// satisfies. Every method targets the device at cid.
type Backend interface {
	Kind() BackendKind

	// Shell runs a shell command and returns combined stdout.
	Shell(ctx context.Context, cid string, cmd string) (string, error)

	// ExecOut runs `adb exec-out <cmd>` and returns raw stdout bytes,
	// used for binary payloads such as screenshots.
	ExecOut(ctx context.Context, cid string, cmd string) ([]byte, error)

	// Close releases any persistent resources (shell process, socket)
	// held for cid. Safe to call even if nothing was ever opened.
	Close(cid string) error
}

// Point is a screen coordinate in device pixels.
type Point struct {
	X, Y int
}

// latencySample is one measured call duration for a (device, family,
// backend) tuple.
type latencySample struct {
	duration time.Duration
	at       time.Time
}
