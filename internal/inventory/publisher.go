package inventory

import (
	"github.com/nerrad567/dockd/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used to mirror the inventory.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
}

// Logger is the logging interface used by the MQTT mirror.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Mirror publishes each exposed device as a retained message on
// dockd/inventory/{id} and clears the topic on withdrawal, so late
// subscribers see the current inventory.
type Mirror struct {
	pub    Publisher
	logger Logger
}

// NewMirror creates a mirror. Attach it with store.OnChange(m.Handle).
func NewMirror(pub Publisher, logger Logger) *Mirror {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Mirror{pub: pub, logger: logger}
}

// Handle publishes one change. Failures are logged; the broker copy
// catches up on the next change of the device.
func (m *Mirror) Handle(c Change) {
	topic := mqtt.Topics{}.Inventory(c.Device.ID)

	var err error
	switch c.Type {
	case ChangeExposed:
		err = m.pub.PublishJSON(topic, c.Device, true)
	case ChangeWithdrawn:
		err = m.pub.ClearRetained(topic)
	}
	if err != nil {
		m.logger.Warn("failed to mirror inventory change",
			"device", c.Device.ID,
			"change", c.Type,
			"error", err,
		)
	}
}
