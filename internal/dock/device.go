package dock

import (
	"slices"
	"sort"
	"sync"
)

// Kind classifies a virtual device within the dock graph.
type Kind string

// Device kinds.
const (
	// KindHub is the physical USB hub. Created per arrival session, never cached.
	KindHub Kind = "hub"

	// KindController is the dock's embedded controller (EC). Cached in the
	// Registry across physical re-enumeration.
	KindController Kind = "controller"

	// KindLinkEndpoint is the bridged high-speed link controller owned by a
	// Controller.
	KindLinkEndpoint Kind = "link_endpoint"

	// KindForeign is a device enumerated by another subsystem and attached to
	// the graph only so that composite operations can relate it to a
	// controller.
	KindForeign Kind = "foreign"
)

// FlagHasBridge is the custom capability flag declaring that a hub (or
// controller) bridges a high-speed link behind it.
const FlagHasBridge = "has-bridge"

// Info describes a device at construction time.
type Info struct {
	ID        string
	Name      string
	Kind      Kind
	Subsystem string
	VendorID  uint16
	ProductID uint16
	Updatable bool
	Flags     []string

	// HubID is the id of the physical hub the device was composed from.
	HubID string
}

// Device is a logical device that exists independently of whether the
// underlying physical device is currently present on the bus.
//
// Ownership runs strictly downward: a device owns the children in its
// children slice. The parent pointer is a back-reference for navigation only
// and never implies ownership.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Mutation normally happens on
//     the single event goroutine; the lock exists so read-only consumers
//     (API, publishers) can take snapshots at any time.
type Device struct {
	// Immutable after construction.
	id        string
	name      string
	kind      Kind
	subsystem string
	vendorID  uint16
	productID uint16
	hubID     string

	mu         sync.RWMutex
	updatable  bool
	willReplug bool
	rebooted   bool
	flags      map[string]struct{}
	parent     *Device // non-owning
	parentID   string
	children   []*Device
}

// New creates a device from info. Flags are copied.
func New(info Info) *Device {
	d := &Device{
		id:        info.ID,
		name:      info.Name,
		kind:      info.Kind,
		subsystem: info.Subsystem,
		vendorID:  info.VendorID,
		productID: info.ProductID,
		hubID:     info.HubID,
		updatable: info.Updatable,
		flags:     make(map[string]struct{}, len(info.Flags)),
	}
	for _, f := range info.Flags {
		d.flags[f] = struct{}{}
	}
	return d
}

// NewHub creates the transient hub device for one physical arrival.
// The hub id is derived from the physical path so that repeated arrival
// events for the same insertion resolve to the same topology key.
func NewHub(physicalID string, info Info) *Device {
	info.ID = HubID(physicalID)
	info.HubID = info.ID
	info.Kind = KindHub
	return New(info)
}

// newController creates the controller device that sits behind hub.
func newController(hub *Device) *Device {
	return New(Info{
		ID:        ControllerID(hub.ID()),
		Name:      hub.Name() + " Controller",
		Kind:      KindController,
		Subsystem: hub.Subsystem(),
		VendorID:  hub.VendorID(),
		ProductID: hub.ProductID(),
		Updatable: true,
		HubID:     hub.ID(),
	})
}

// newLinkEndpoint creates the link endpoint owned by controller.
func newLinkEndpoint(controller *Device) *Device {
	return New(Info{
		ID:        LinkEndpointID(controller.ID()),
		Name:      controller.Name() + " Link Endpoint",
		Kind:      KindLinkEndpoint,
		Subsystem: controller.Subsystem(),
		VendorID:  controller.VendorID(),
		ProductID: controller.ProductID(),
		Updatable: true,
		HubID:     controller.HubID(),
	})
}

// ID returns the unique device id.
func (d *Device) ID() string { return d.id }

// Kind returns the device kind.
func (d *Device) Kind() Kind { return d.kind }

// Subsystem returns the tag of the subsystem that owns this device.
func (d *Device) Subsystem() string { return d.subsystem }

// VendorID returns the USB vendor id of the originating hardware.
func (d *Device) VendorID() uint16 { return d.vendorID }

// ProductID returns the USB product id of the originating hardware.
func (d *Device) ProductID() uint16 { return d.productID }

// HubID returns the id of the physical hub the device was composed from, or
// "" for devices not built from a hub arrival. A hub returns its own id.
func (d *Device) HubID() string { return d.hubID }

// Name returns the human-readable name.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// SetName replaces the human-readable name. Used by quirk sources.
func (d *Device) SetName(name string) {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
}

// HasFlag reports whether the device declares the custom capability flag.
func (d *Device) HasFlag(flag string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.flags[flag]
	return ok
}

// AddFlag declares a custom capability flag.
func (d *Device) AddFlag(flag string) {
	d.mu.Lock()
	d.flags[flag] = struct{}{}
	d.mu.Unlock()
}

// Flags returns the custom capability flags in sorted order.
func (d *Device) Flags() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	flags := make([]string, 0, len(d.flags))
	for f := range d.flags {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}

// Updatable reports whether the device offers firmware updates.
func (d *Device) Updatable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatable
}

// SetUpdatable sets the updatable flag on this device only.
func (d *Device) SetUpdatable(updatable bool) {
	d.mu.Lock()
	d.updatable = updatable
	d.mu.Unlock()
}

// clearUpdatableTree clears the updatable flag on d and every descendant.
func (d *Device) clearUpdatableTree() {
	d.SetUpdatable(false)
	for _, child := range d.Children() {
		child.clearUpdatableTree()
	}
}

// WillReplug reports whether the device has been marked as about to
// transiently disconnect and reconnect.
func (d *Device) WillReplug() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.willReplug
}

// MarkWillReplug marks the device as about to replug. It performs no I/O
// and is idempotent. It returns true if the marking changed.
func (d *Device) MarkWillReplug() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.willReplug {
		return false
	}
	d.willReplug = true
	d.rebooted = false
	return true
}

// ClearWillReplug removes the replug marking.
func (d *Device) ClearWillReplug() {
	d.mu.Lock()
	d.willReplug = false
	d.rebooted = false
	d.mu.Unlock()
}

// markRebooted records that a reboot was issued while the device was
// marked as about to replug.
func (d *Device) markRebooted() {
	d.mu.Lock()
	d.rebooted = d.willReplug
	d.mu.Unlock()
}

// finishReplug clears the replug marking if a reboot was issued since it
// was set. It reports whether the marking was cleared.
func (d *Device) finishReplug() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.willReplug || !d.rebooted {
		return false
	}
	d.willReplug = false
	d.rebooted = false
	return true
}

// Parent returns the parent device, or nil.
func (d *Device) Parent() *Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parent
}

// ParentID returns the id of the parent device, or "". It survives the
// parent object being destroyed and recreated under the same id.
func (d *Device) ParentID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parentID
}

// SetParent records a non-owning back-reference to parent without adding d
// to the parent's children. Used for foreign devices that another subsystem
// owns but that physically sit behind a controller.
func (d *Device) SetParent(parent *Device) {
	d.mu.Lock()
	d.parent = parent
	d.parentID = ""
	if parent != nil {
		d.parentID = parent.id
	}
	d.mu.Unlock()
}

// SetParentID records the id of a parent that is not known yet. The
// back-reference is dropped until SetParent links the device again.
func (d *Device) SetParentID(id string) {
	d.mu.Lock()
	d.parent = nil
	d.parentID = id
	d.mu.Unlock()
}

// Children returns a copy of the owned children in insertion order.
func (d *Device) Children() []*Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.children)
}

// AddChild makes child an owned child of d. Adding the same child twice is
// a no-op.
func (d *Device) AddChild(child *Device) {
	d.mu.Lock()
	if !slices.Contains(d.children, child) {
		d.children = append(d.children, child)
	}
	d.mu.Unlock()

	child.SetParent(d)
}

// release drops ownership of every descendant and clears their back-references.
func (d *Device) release() {
	d.mu.Lock()
	children := d.children
	d.children = nil
	d.mu.Unlock()

	for _, child := range children {
		child.release()
		child.SetParent(nil)
	}
}

// Snapshot is a point-in-time, JSON-friendly copy of a device.
type Snapshot struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Subsystem  string   `json:"subsystem,omitempty"`
	VendorID   uint16   `json:"vendor_id,omitempty"`
	ProductID  uint16   `json:"product_id,omitempty"`
	Updatable  bool     `json:"updatable"`
	WillReplug bool     `json:"will_replug"`
	Flags      []string `json:"flags,omitempty"`
	HubID      string   `json:"hub_id,omitempty"`
	ParentID   string   `json:"parent_id,omitempty"`
	ChildIDs   []string `json:"child_ids,omitempty"`
}

// Snapshot returns a copy of the device's current state.
func (d *Device) Snapshot() Snapshot {
	s := Snapshot{
		ID:        d.id,
		Kind:      d.kind,
		Subsystem: d.subsystem,
		VendorID:  d.vendorID,
		ProductID: d.productID,
		HubID:     d.hubID,
		Flags:     d.Flags(),
	}

	d.mu.RLock()
	s.Name = d.name
	s.Updatable = d.updatable
	s.WillReplug = d.willReplug
	s.ParentID = d.parentID
	for _, c := range d.children {
		s.ChildIDs = append(s.ChildIDs, c.id)
	}
	d.mu.RUnlock()

	return s
}
