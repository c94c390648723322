package transport

import "errors"

var (
	// ErrNotStarted is returned when a call is made before Start.
	ErrNotStarted = errors.New("transport: not started")

	// ErrTimeout is returned when the agent does not reply in time.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrRejected is returned when the agent replies with an error.
	ErrRejected = errors.New("transport: request rejected")

	// ErrPublishFailed wraps failures sending a request.
	ErrPublishFailed = errors.New("transport: publish failed")
)
