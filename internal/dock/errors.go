package dock

import "errors"

// Domain errors for the dock package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, dock.ErrRebootFailure) {
//	    // the dock firmware state is now uncertain
//	}
var (
	// ErrLockFailure is returned when scoped exclusive access to a device
	// could not be obtained. The operation is aborted for that device only.
	ErrLockFailure = errors.New("dock: lock failed")

	// ErrProbeFailure is returned when device-specific initialisation failed.
	// During composition it is logged and the device is skipped.
	ErrProbeFailure = errors.New("dock: probe failed")

	// ErrDuplicateRegistration is returned when a controller is inserted under
	// a topology key that already owns one.
	ErrDuplicateRegistration = errors.New("dock: controller already registered")

	// ErrRebootFailure is returned when the controller reboot command fails
	// during the cleanup phase of a composite operation.
	ErrRebootFailure = errors.New("dock: reboot failed")

	// ErrOutOfOrder is returned when a composite operation phase is invoked
	// in the wrong order (cleanup before prepare, or any phase after cleanup).
	ErrOutOfOrder = errors.New("dock: composite phase out of order")

	// ErrMissingDependency is returned by constructors when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("dock: missing dependency")
)
