package dock

import "fmt"

// Teardown removes a cached controller and its children when the hub that
// created it disappears.
type Teardown struct {
	registry  *Registry
	inventory Inventory
	observer  Observer
	logger    Logger
}

// NewTeardown creates a teardown handler. observer and logger may be nil.
func NewTeardown(registry *Registry, inventory Inventory, observer Observer, logger Logger) (*Teardown, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	}
	if inventory == nil {
		return nil, fmt.Errorf("%w: inventory", ErrMissingDependency)
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Teardown{
		registry:  registry,
		inventory: inventory,
		observer:  observer,
		logger:    logger,
	}, nil
}

// DeviceRemoved handles the departure of the device with the given id.
// The id is used directly as the topology key. When it owns a controller the
// controller subtree is withdrawn, children first, and the registry entry is
// removed. It returns the destroyed controller, or nil when there was nothing
// to do. Calling it again for the same id is a no-op.
func (t *Teardown) DeviceRemoved(deviceID string) *Device {
	key := TopologyKey(deviceID)
	ctrl, ok := t.registry.Lookup(key)
	if !ok {
		return nil
	}

	t.logger.Debug("removing virtual controller",
		"name", ctrl.Name(),
		"controller", ctrl.ID(),
		"key", key,
	)
	t.withdrawTree(ctrl)
	t.registry.Remove(key)
	ctrl.release()

	emit(t.observer, Event{Type: EventTeardown, DeviceID: ctrl.ID(), Key: key})
	return ctrl
}

// withdrawTree withdraws dev's descendants depth-first, then dev itself.
func (t *Teardown) withdrawTree(dev *Device) {
	for _, child := range dev.Children() {
		t.withdrawTree(child)
	}
	t.inventory.Withdraw(dev)
}
