// Package telemetry exposes dockd metrics for Prometheus scraping.
//
// It complements the optional InfluxDB event writer: InfluxDB stores the
// event history, while the collector here serves current counters and
// gauges on GET /metrics.
//
// Exported series:
//
//	dockd_dock_events_total{type,result}
//	dockd_dock_event_duration_seconds{type}
//	dockd_inventory_devices
//	dockd_registry_docks
//	dockd_hotplug_queue_depth
//	dockd_transport_pending_requests
package telemetry
