package hotplug

import "errors"

var (
	// ErrQueueFull is returned by message handlers when the event queue
	// cannot take another event.
	ErrQueueFull = errors.New("hotplug: event queue full")

	// ErrInvalidMessage is returned for payloads that decode but lack
	// required fields.
	ErrInvalidMessage = errors.New("hotplug: invalid message")

	// ErrUnknownPhase is returned for composite requests naming neither
	// prepare nor cleanup.
	ErrUnknownPhase = errors.New("hotplug: unknown composite phase")
)
