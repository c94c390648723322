// Package influxdb records dock metrics in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, batched
// non-blocking writes and health checks. dockd writes one point per dock
// lifecycle event (measurement "dock_events") so reboot latency, probe
// failures and duplicate arrivals can be graphed over time.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WriteDockEvent("rebooted", ctrlID, map[string]any{"duration_ms": 85}, time.Now())
package influxdb
