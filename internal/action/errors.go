package action

import "errors"

var (
	// ErrUnknownType is returned when an Action's ActionType doesn't match
	// any known dispatch case.
	ErrUnknownType = errors.New("action: unknown action_type")

	// ErrElementNotFound is returned when an action targets a UI element
	// that cannot be resolved in the current screen.
	ErrElementNotFound = errors.New("action: target element not found")

	// ErrMissingParameter is returned when a required entry is absent from
	// Action.Parameters.
	ErrMissingParameter = errors.New("action: missing parameter")
)
