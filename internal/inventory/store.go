package inventory

import (
	"sync"

	"github.com/nerrad567/dockd/internal/dock"
)

// ChangeType distinguishes inventory changes.
type ChangeType string

const (
	ChangeExposed   ChangeType = "exposed"
	ChangeWithdrawn ChangeType = "withdrawn"
)

// Change describes one inventory mutation. Device is a snapshot taken at
// the time of the change.
type Change struct {
	Type   ChangeType    `json:"type"`
	Device dock.Snapshot `json:"device"`
}

// Listener receives inventory changes. Listeners are called synchronously,
// in registration order, after the store lock has been released.
type Listener func(Change)

// Store is the system-wide device inventory. It implements dock.Inventory.
//
// The store holds non-owning references: withdrawing a device never
// destroys it. Devices are kept in exposure order.
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*dock.Device
	order   []string

	listenerMu sync.RWMutex
	listeners  []Listener
}

var _ dock.Inventory = (*Store)(nil)

// NewStore creates an empty inventory.
func NewStore() *Store {
	return &Store{devices: make(map[string]*dock.Device)}
}

// OnChange registers a listener.
func (s *Store) OnChange(l Listener) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenerMu.Unlock()
}

// Expose adds dev, or refreshes it when already present. A re-exposed
// device keeps its original position.
func (s *Store) Expose(dev *dock.Device) {
	s.mu.Lock()
	if _, ok := s.devices[dev.ID()]; !ok {
		s.order = append(s.order, dev.ID())
	}
	s.devices[dev.ID()] = dev
	s.mu.Unlock()

	s.notify(Change{Type: ChangeExposed, Device: dev.Snapshot()})
}

// Withdraw removes dev. Withdrawing an absent device is a no-op and does
// not notify listeners.
func (s *Store) Withdraw(dev *dock.Device) {
	s.mu.Lock()
	if _, ok := s.devices[dev.ID()]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.devices, dev.ID())
	for i, id := range s.order {
		if id == dev.ID() {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify(Change{Type: ChangeWithdrawn, Device: dev.Snapshot()})
}

// Device returns the live device with the given id.
func (s *Store) Device(id string) (*dock.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	return d, ok
}

// Resolve maps ids to live devices in the given order, skipping unknown ids.
// It returns the devices and the ids that could not be resolved.
func (s *Store) Resolve(ids []string) (found []*dock.Device, missing []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if d, ok := s.devices[id]; ok {
			found = append(found, d)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

// ByParent returns the exposed devices whose parent id is parentID, in
// exposure order.
func (s *Store) ByParent(parentID string) []*dock.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*dock.Device
	for _, id := range s.order {
		if d := s.devices[id]; d.ParentID() == parentID {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot returns the current state of one device.
func (s *Store) Snapshot(id string) (dock.Snapshot, bool) {
	d, ok := s.Device(id)
	if !ok {
		return dock.Snapshot{}, false
	}
	return d.Snapshot(), true
}

// List returns snapshots of every exposed device in exposure order.
func (s *Store) List() []dock.Snapshot {
	s.mu.RLock()
	devices := make([]*dock.Device, 0, len(s.order))
	for _, id := range s.order {
		devices = append(devices, s.devices[id])
	}
	s.mu.RUnlock()

	out := make([]dock.Snapshot, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// Len returns the number of exposed devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

func (s *Store) notify(c Change) {
	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()

	for _, l := range listeners {
		l(c)
	}
}
