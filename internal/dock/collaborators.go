package dock

import (
	"context"
	"time"
)

// Inventory is the host's visible device set. The inventory holds
// non-owning references used for display and dispatch.
type Inventory interface {
	// Expose adds dev to the visible set.
	Expose(dev *Device)

	// Withdraw removes dev from the visible set. Withdrawing an absent
	// device is a no-op.
	Withdraw(dev *Device)
}

// Lock is a scoped exclusive acquisition of a device.
type Lock interface {
	Release() error
}

// Locker opens a device for exclusive access. Acquisition includes whatever
// probing the transport needs to consider the device usable.
type Locker interface {
	Acquire(ctx context.Context, dev *Device) (Lock, error)
}

// Rebooter issues the controller reboot command.
type Rebooter interface {
	Reboot(ctx context.Context, controller *Device) error
}

// LinkMonitor reports whether the high-speed link behind a controller is
// currently up. An active link means the link endpoint is reachable out of
// band and must not be duplicated.
type LinkMonitor interface {
	LinkActive(ctx context.Context, controller *Device) (bool, error)
}

// QuirkSource populates names and custom capability flags from externally
// loaded configuration.
type QuirkSource interface {
	Apply(dev *Device)
}

// EventType names a composition or sequencing event.
type EventType string

// Event types reported to an Observer.
const (
	EventHubExposed          EventType = "hub_exposed"
	EventControllerCreated   EventType = "controller_created"
	EventLinkEndpointCreated EventType = "link_endpoint_created"
	EventDuplicateArrival    EventType = "duplicate_arrival"
	EventProbeFailed         EventType = "probe_failed"
	EventTeardown            EventType = "teardown"
	EventReplugMarked        EventType = "replug_marked"
	EventRebooted            EventType = "rebooted"
	EventRebootFailed        EventType = "reboot_failed"
)

// Event describes something that happened to the dock graph.
type Event struct {
	Type     EventType
	DeviceID string
	Key      TopologyKey
	Err      error
	Duration time.Duration
	Time     time.Time
}

// Observer receives events. Implementations must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

type noopObserver struct{}

func (noopObserver) Observe(Event) {}

// nopQuirks is used when no quirk source is configured.
type nopQuirks struct{}

func (nopQuirks) Apply(*Device) {}

// emit stamps ev with the current time and forwards it.
func emit(o Observer, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	o.Observe(ev)
}
