package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDockEvents is the measurement holding dock lifecycle points.
const MeasurementDockEvents = "dock_events"

// WriteDockEvent records one dock lifecycle event (arrival, teardown,
// reboot, ...). The event type and device id become tags; fields carry the
// numeric detail, e.g. {"duration_ms": 120, "failed": false}. A nil or empty
// fields map records a count of 1.
func (c *Client) WriteDockEvent(eventType, deviceID string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if len(fields) == 0 {
		fields = map[string]any{"count": 1}
	}
	if at.IsZero() {
		at = time.Now()
	}

	point := write.NewPoint(
		MeasurementDockEvents,
		map[string]string{
			"event":     eventType,
			"device_id": deviceID,
		},
		fields,
		at,
	)
	c.writeAPI.WritePoint(point)
}

// WriteRegistrySize records how many docks are currently composed.
func (c *Client) WriteRegistrySize(daemonID string, docks int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dock_registry",
		map[string]string{"daemon_id": daemonID},
		map[string]any{"docks": docks},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}
