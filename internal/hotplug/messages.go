package hotplug

import (
	"fmt"

	"github.com/nerrad567/dockd/internal/dock"
)

// HubMessage announces a USB hub arrival on dockd/usb/added.
type HubMessage struct {
	PhysicalID string   `json:"physical_id"`
	Name       string   `json:"name"`
	Subsystem  string   `json:"subsystem,omitempty"`
	VendorID   uint16   `json:"vendor_id"`
	ProductID  uint16   `json:"product_id"`
	Updatable  bool     `json:"updatable"`
	Flags      []string `json:"flags,omitempty"`
}

// Validate checks required fields.
func (m HubMessage) Validate() error {
	if m.PhysicalID == "" {
		return fmt.Errorf("%w: physical_id is required", ErrInvalidMessage)
	}
	return nil
}

// Hub builds the transient hub device for this arrival.
func (m HubMessage) Hub() *dock.Device {
	return dock.NewHub(m.PhysicalID, dock.Info{
		Name:      m.Name,
		Subsystem: m.Subsystem,
		VendorID:  m.VendorID,
		ProductID: m.ProductID,
		Updatable: m.Updatable,
		Flags:     m.Flags,
	})
}

// RemovalMessage announces a departure on dockd/usb/removed or
// dockd/device/detached. USB departures may name the physical path instead
// of the device id.
type RemovalMessage struct {
	DeviceID   string `json:"device_id,omitempty"`
	PhysicalID string `json:"physical_id,omitempty"`
}

// Validate checks that the message identifies a device.
func (m RemovalMessage) Validate() error {
	if m.DeviceID == "" && m.PhysicalID == "" {
		return fmt.Errorf("%w: device_id or physical_id is required", ErrInvalidMessage)
	}
	return nil
}

// ID returns the id of the departing device.
func (m RemovalMessage) ID() string {
	if m.DeviceID != "" {
		return m.DeviceID
	}
	return dock.HubID(m.PhysicalID)
}

// AttachMessage announces a device enumerated by another subsystem on
// dockd/device/attached, typically a link-domain device behind a dock
// controller.
type AttachMessage struct {
	DeviceID  string   `json:"device_id"`
	Name      string   `json:"name"`
	Subsystem string   `json:"subsystem"`
	ParentID  string   `json:"parent_id,omitempty"`
	VendorID  uint16   `json:"vendor_id,omitempty"`
	ProductID uint16   `json:"product_id,omitempty"`
	Updatable bool     `json:"updatable"`
	Flags     []string `json:"flags,omitempty"`
}

// Validate checks required fields.
func (m AttachMessage) Validate() error {
	if m.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidMessage)
	}
	if m.Subsystem == "" {
		return fmt.Errorf("%w: subsystem is required", ErrInvalidMessage)
	}
	return nil
}

// Device builds the foreign device.
func (m AttachMessage) Device() *dock.Device {
	return dock.New(dock.Info{
		ID:        m.DeviceID,
		Name:      m.Name,
		Kind:      dock.KindForeign,
		Subsystem: m.Subsystem,
		VendorID:  m.VendorID,
		ProductID: m.ProductID,
		Updatable: m.Updatable,
		Flags:     m.Flags,
	})
}

// Composite phases.
const (
	PhasePrepare = "prepare"
	PhaseCleanup = "cleanup"
)

// CompositeRequest asks dockd to take part in one phase of a composite
// multi-device operation. DeviceIDs is the ordered batch.
type CompositeRequest struct {
	OperationID string   `json:"operation_id"`
	Phase       string   `json:"phase"`
	DeviceIDs   []string `json:"device_ids"`
}

// Validate checks required fields.
func (m CompositeRequest) Validate() error {
	if m.OperationID == "" {
		return fmt.Errorf("%w: operation_id is required", ErrInvalidMessage)
	}
	switch m.Phase {
	case PhasePrepare, PhaseCleanup:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPhase, m.Phase)
	}
}

// CompositeResponse is published on dockd/composite/response/{operation_id}.
type CompositeResponse struct {
	OperationID string   `json:"operation_id"`
	Phase       string   `json:"phase"`
	OK          bool     `json:"ok"`
	Error       string   `json:"error,omitempty"`
	Controller  string   `json:"controller,omitempty"`
	Marked      []string `json:"marked,omitempty"`
	Missing     []string `json:"missing,omitempty"`
}
