package hotplug

import (
	"time"

	"github.com/nerrad567/dockd/internal/dock"
)

// EventWriter records dock events as time-series points. Satisfied by
// *influxdb.Client.
type EventWriter interface {
	WriteDockEvent(eventType, deviceID string, fields map[string]any, at time.Time)
}

// Fanout forwards each event to every non-nil observer in order.
func Fanout(observers ...dock.Observer) dock.Observer {
	var live []dock.Observer
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	return dock.ObserverFunc(func(ev dock.Event) {
		for _, o := range live {
			o.Observe(ev)
		}
	})
}

// MetricsObserver writes every dock event as a point.
func MetricsObserver(w EventWriter) dock.Observer {
	return dock.ObserverFunc(func(ev dock.Event) {
		fields := map[string]any{
			"count":  1,
			"failed": ev.Err != nil,
		}
		if ev.Duration > 0 {
			fields["duration_ms"] = ev.Duration.Milliseconds()
		}
		w.WriteDockEvent(string(ev.Type), ev.DeviceID, fields, ev.Time)
	})
}

// LogObserver logs each event at debug level, failures at warn.
func LogObserver(logger Logger) dock.Observer {
	return dock.ObserverFunc(func(ev dock.Event) {
		args := []any{"type", ev.Type, "device", ev.DeviceID}
		if ev.Key != "" {
			args = append(args, "key", ev.Key)
		}
		if ev.Err != nil {
			logger.Warn("dock event", append(args, "error", ev.Err)...)
			return
		}
		logger.Debug("dock event", args...)
	})
}
