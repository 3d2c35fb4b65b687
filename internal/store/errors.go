package store

import "errors"

var (
	// ErrNotFound is returned when a record cannot be located by any of the
	// lookup strategies (direct, identity-resolved, or whole-store scan).
	ErrNotFound = errors.New("store: record not found")

	// ErrTemplateIsBuiltin is returned when a caller tries to delete or
	// overwrite a built-in flow template by name.
	ErrTemplateIsBuiltin = errors.New("store: cannot modify a built-in flow template")

	// ErrUnknownBundle is returned when installing a bundled app flow for a
	// package name with no registered bundle.
	ErrUnknownBundle = errors.New("store: no bundled flow for that package")

	// ErrNoTargetApp is returned by GenerateFlowForSensor when the sensor
	// has no TargetApp recorded, so no launch_app step can be synthesized.
	ErrNoTargetApp = errors.New("store: sensor has no target app")
)
