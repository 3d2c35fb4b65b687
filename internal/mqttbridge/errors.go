package mqttbridge

import "errors"

var (
	// ErrNotConnected names the not-connected condition for callers of
	// this package. No bridge operation returns it: publish failures are
	// passed through as the Publisher's own error.
	ErrNotConnected = errors.New("mqttbridge: client not connected")

	// ErrNoHandler is returned by an action's execute-topic handler when
	// an EXECUTE press arrives for an action published with a nil
	// ActionCommandHandler.
	ErrNoHandler = errors.New("mqttbridge: no handler registered")

	// ErrRequestTimeout is returned by SendUITreeRequest (and similar
	// request/response helpers) when no response arrives in time.
	ErrRequestTimeout = errors.New("mqttbridge: request timed out waiting for response")
)
