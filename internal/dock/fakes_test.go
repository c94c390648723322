package dock

import (
	"context"
	"errors"
	"sync"
)

// fakeInventory records exposed devices and the order of operations.
type fakeInventory struct {
	mu      sync.Mutex
	devices map[string]*Device
	log     []string
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{devices: make(map[string]*Device)}
}

func (f *fakeInventory) Expose(dev *Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[dev.ID()] = dev
	f.log = append(f.log, "expose:"+string(dev.Kind()))
}

func (f *fakeInventory) Withdraw(dev *Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, dev.ID())
	f.log = append(f.log, "withdraw:"+string(dev.Kind()))
}

func (f *fakeInventory) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.devices[id]
	return ok
}

func (f *fakeInventory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

func (f *fakeInventory) countKind(kind Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.devices {
		if d.Kind() == kind {
			n++
		}
	}
	return n
}

var errBusy = errors.New("device busy")

// fakeLocker fails acquisition for configured kinds and tracks balance.
type fakeLocker struct {
	mu       sync.Mutex
	failKind map[Kind]bool
	acquired int
	released int
	held     int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{failKind: make(map[Kind]bool)}
}

func (f *fakeLocker) Acquire(_ context.Context, dev *Device) (Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKind[dev.Kind()] {
		return nil, errBusy
	}
	f.acquired++
	f.held++
	return &fakeLock{owner: f}, nil
}

func (f *fakeLocker) outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held
}

type fakeLock struct {
	owner *fakeLocker
	once  sync.Once
}

func (l *fakeLock) Release() error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		l.owner.released++
		l.owner.held--
		l.owner.mu.Unlock()
	})
	return nil
}

// fakeLinks reports a fixed link state.
type fakeLinks struct {
	active bool
	err    error
	calls  int
}

func (f *fakeLinks) LinkActive(context.Context, *Device) (bool, error) {
	f.calls++
	return f.active, f.err
}

// fakeRebooter counts reboot commands.
type fakeRebooter struct {
	err     error
	reboots []string
}

func (f *fakeRebooter) Reboot(_ context.Context, dev *Device) error {
	f.reboots = append(f.reboots, dev.ID())
	return f.err
}

// recordingObserver captures events.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) Observe(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingObserver) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// bridgeQuirks gives every controller the has-bridge flag.
type bridgeQuirks struct{}

func (bridgeQuirks) Apply(dev *Device) {
	if dev.Kind() == KindController {
		dev.AddFlag(FlagHasBridge)
	}
}

func testHub(physicalID string, updatable bool, flags ...string) *Device {
	return NewHub(physicalID, Info{
		Name:      "Test Dock",
		Subsystem: "dock",
		VendorID:  0x413c,
		ProductID: 0xb06e,
		Updatable: updatable,
		Flags:     flags,
	})
}
