// Package dock composes physical dock hardware into a stable logical device
// graph.
//
// A dock enumerates as a USB hub. Behind the hub sits a persistent embedded
// controller and, on some models, a bridged high-speed link controller. The
// physical bus is unstable during firmware updates: devices vanish and
// re-enumerate. This package keeps the logical graph stable across that churn.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                              dock                                 │
//	│                                                                   │
//	│  arrival ──▶ Composer ──┐                 ┌── Teardown ◀── removal │
//	│                         ▼                 ▼                       │
//	│                  ┌─────────────────────────────┐                  │
//	│                  │  Registry (key → Controller) │                  │
//	│                  └─────────────────────────────┘                  │
//	│                         ▲                                         │
//	│  composite op ──▶ Sequencer ── Operation{Idle→Prepared→Cleaned}    │
//	│                                                                   │
//	└───────────────────────────────────────────────────────────────────┘
//	         │ Expose/Withdraw          │ Acquire/Reboot/LinkActive
//	         ▼                          ▼
//	    Inventory                 Locker / Rebooter / LinkMonitor
//
// # Key Types
//
//   - Device: a logical device (hub, controller, link endpoint, foreign)
//   - Registry: owns cached controllers, keyed by TopologyKey
//   - Composer: binds a hub arrival to a new or cached controller
//   - Teardown: destroys a controller subtree when its hub departs
//   - Sequencer/Operation: two-phase prepare/cleanup across a batch
//
// # Ownership
//
// The Registry owns controllers; a controller owns its link endpoint. Parent
// pointers are back-references only. The Inventory holds non-owning
// references. Removing a registry entry is the sole authority for destroying
// a controller.
//
// # Concurrency
//
// Handlers expect events to be serialized by the caller (see the hotplug
// package). Devices and the Registry are nevertheless safe for concurrent
// reads so that API handlers can take snapshots.
package dock
