package adbtransport

import "errors"

// Domain errors for the adbtransport package.
var (
	// ErrCaptureFailed is returned when every screenshot path returns data
	// shorter than the sanity floor.
	ErrCaptureFailed = errors.New("adbtransport: capture failed")

	// ErrUIDumpEmpty is returned when uiautomator dump produces empty
	// output after retries.
	ErrUIDumpEmpty = errors.New("adbtransport: ui dump empty")

	// ErrUnlockCooldown is returned when the per-device unlock interlock is
	// cooling down after repeated failures.
	ErrUnlockCooldown = errors.New("adbtransport: unlock cooldown active")

	// ErrNoBackend is returned when a Transport has no usable backend
	// configured for a primitive family.
	ErrNoBackend = errors.New("adbtransport: no backend available")

	// ErrDeviceOffline is returned when a device is not currently connected.
	ErrDeviceOffline = errors.New("adbtransport: device offline")
)
