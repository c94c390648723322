// Package transport talks to the USB I/O agent that owns the physical
// devices.
//
// dockd never touches hardware itself. Opening a device, rebooting a dock
// controller and reading link state are requests published on
// dockd/transport/request/{op}; the agent answers on
// dockd/transport/response/{request_id}. Remote correlates replies by
// request id and bounds every call with a timeout.
package transport
