// Package api implements the HTTP API and WebSocket stream for dockd.
//
// This package provides:
//   - Read-only REST endpoints for the exposed device inventory, composed
//     docks and the event journal
//   - WebSocket hub broadcasting inventory changes as they happen
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Endpoints
//
//	GET /api/v1/health          component health
//	GET /api/v1/metrics         runtime, inventory and queue gauges
//	GET /api/v1/devices         exposed devices (filters: kind, subsystem, replug)
//	GET /api/v1/devices/{id}    one device
//	GET /api/v1/docks           registry entries with their controller subtree
//	GET /api/v1/journal         dock event journal (filters: type, device_id, since)
//	GET /api/v1/ws              WebSocket inventory stream
//
// # Graceful Degradation
//
// The journal is optional. Without it /journal answers 503 and everything
// else keeps working.
package api
