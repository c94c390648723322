// Package hotplug feeds bus events into the dock handlers.
//
// The USB I/O agent announces arrivals and departures over MQTT, and the
// update orchestrator sends composite prepare/cleanup requests. The
// Dispatcher decodes each message, queues it, and handles the queue on one
// goroutine:
//
//	dockd/usb/added          → Composer.HubAdded
//	dockd/usb/removed        → Teardown.DeviceRemoved, then withdraw the hub
//	dockd/device/attached    → expose a foreign device under its parent
//	dockd/device/detached    → Teardown.DeviceRemoved, then withdraw
//	dockd/composite/request  → Operation.Prepare / Operation.Cleanup
//
// Composite replies go to dockd/composite/response/{operation_id}.
package hotplug
