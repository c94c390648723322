// Package inventory holds the devices dockd currently exposes.
//
// Store is the dock.Inventory the composer and teardown handler write to.
// Readers (the HTTP API, the websocket stream, the composite request
// handler) take snapshots or resolve ids to live devices. Mirror keeps a
// retained copy of every exposed device on the MQTT broker.
package inventory
