package hotplug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/dockd/internal/dock"
	"github.com/nerrad567/dockd/internal/infrastructure/mqtt"
	"github.com/nerrad567/dockd/internal/inventory"
)

const (
	// DefaultQueueSize applies when Options.QueueSize is zero.
	DefaultQueueSize = 64

	// operationTTL bounds how long a prepared operation waits for cleanup.
	operationTTL = time.Hour

	// drainTimeout bounds the handling of events still queued at shutdown.
	drainTimeout = 5 * time.Second
)

// Bus is the subset of the MQTT client used by the dispatcher.
type Bus interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Metrics receives registry gauges. Satisfied by *influxdb.Client.
type Metrics interface {
	WriteRegistrySize(daemonID string, docks int)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds the dispatcher's collaborators.
type Options struct {
	Bus       Bus
	Registry  *dock.Registry
	Inventory *inventory.Store
	Composer  *dock.Composer
	Teardown  *dock.Teardown
	Sequencer *dock.Sequencer

	// QueueSize is the event buffer. Default: DefaultQueueSize.
	QueueSize int

	// Metrics is optional; DaemonID tags its points.
	Metrics  Metrics
	DaemonID string

	Logger Logger
}

type eventKind int

const (
	eventHubAdded eventKind = iota + 1
	eventRemoved
	eventAttached
	eventComposite
)

type event struct {
	kind      eventKind
	hub       HubMessage
	removal   RemovalMessage
	attach    AttachMessage
	composite CompositeRequest
}

type pendingOperation struct {
	op      *dock.Operation
	started time.Time
}

// Dispatcher turns MQTT hotplug and composite messages into calls on the
// dock handlers.
//
// Message handlers only decode and queue. Run drains the queue on a single
// goroutine, so the dock handlers never see two events at once and events
// are handled in arrival order.
type Dispatcher struct {
	bus       Bus
	registry  *dock.Registry
	inventory *inventory.Store
	composer  *dock.Composer
	teardown  *dock.Teardown
	sequencer *dock.Sequencer
	metrics   Metrics
	daemonID  string
	logger    Logger

	events chan event

	// owned by the Run goroutine
	operations map[string]*pendingOperation
}

// New creates a dispatcher.
func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Bus == nil:
		return nil, fmt.Errorf("%w: bus", dock.ErrMissingDependency)
	case opts.Registry == nil:
		return nil, fmt.Errorf("%w: registry", dock.ErrMissingDependency)
	case opts.Inventory == nil:
		return nil, fmt.Errorf("%w: inventory", dock.ErrMissingDependency)
	case opts.Composer == nil:
		return nil, fmt.Errorf("%w: composer", dock.ErrMissingDependency)
	case opts.Teardown == nil:
		return nil, fmt.Errorf("%w: teardown", dock.ErrMissingDependency)
	case opts.Sequencer == nil:
		return nil, fmt.Errorf("%w: sequencer", dock.ErrMissingDependency)
	}

	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	d := &Dispatcher{
		bus:        opts.Bus,
		registry:   opts.Registry,
		inventory:  opts.Inventory,
		composer:   opts.Composer,
		teardown:   opts.Teardown,
		sequencer:  opts.Sequencer,
		metrics:    opts.Metrics,
		daemonID:   opts.DaemonID,
		logger:     opts.Logger,
		events:     make(chan event, size),
		operations: make(map[string]*pendingOperation),
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d, nil
}

func (d *Dispatcher) subscriptions() map[string]mqtt.MessageHandler {
	t := mqtt.Topics{}
	return map[string]mqtt.MessageHandler{
		t.USBAdded():         d.onHubAdded,
		t.USBRemoved():       d.onRemoved,
		t.DeviceAttached():   d.onAttached,
		t.DeviceDetached():   d.onRemoved,
		t.CompositeRequest(): d.onComposite,
	}
}

// Start subscribes to the hotplug and composite topics.
func (d *Dispatcher) Start() error {
	for topic, handler := range d.subscriptions() {
		if err := d.bus.Subscribe(topic, d.bus.QoS(), handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// Stop unsubscribes. Events already queued are handled by Run before it
// returns.
func (d *Dispatcher) Stop() {
	for topic := range d.subscriptions() {
		if err := d.bus.Unsubscribe(topic); err != nil {
			d.logger.Warn("failed to unsubscribe", "topic", topic, "error", err)
		}
	}
}

// Run handles queued events until ctx is cancelled, then drains the queue
// under a context bounded by drainTimeout.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx)
			return
		case ev := <-d.events:
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) drain(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), drainTimeout)
	defer cancel()

	for {
		select {
		case ev := <-d.events:
			d.handle(ctx, ev)
		default:
			return
		}
	}
}

// QueueLen returns the number of events waiting to be handled.
func (d *Dispatcher) QueueLen() int {
	return len(d.events)
}

func (d *Dispatcher) enqueue(ev event) error {
	select {
	case d.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) onHubAdded(_ string, payload []byte) error {
	var msg HubMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	return d.enqueue(event{kind: eventHubAdded, hub: msg})
}

func (d *Dispatcher) onRemoved(_ string, payload []byte) error {
	var msg RemovalMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	return d.enqueue(event{kind: eventRemoved, removal: msg})
}

func (d *Dispatcher) onAttached(_ string, payload []byte) error {
	var msg AttachMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	return d.enqueue(event{kind: eventAttached, attach: msg})
}

// onComposite queues valid requests. Requests with an operation id but an
// unusable phase are answered immediately so the caller is not left waiting.
func (d *Dispatcher) onComposite(_ string, payload []byte) error {
	var msg CompositeRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		if msg.OperationID != "" {
			d.reply(CompositeResponse{OperationID: msg.OperationID, Phase: msg.Phase, Error: err.Error()})
		}
		return err
	}
	return d.enqueue(event{kind: eventComposite, composite: msg})
}

type validator interface {
	Validate() error
}

func decode(payload []byte, v validator) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return v.Validate()
}

func (d *Dispatcher) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventHubAdded:
		d.hubAdded(ctx, ev.hub)
	case eventRemoved:
		d.removed(ev.removal)
	case eventAttached:
		d.attached(ev.attach)
	case eventComposite:
		d.composite(ctx, ev.composite)
	}
	if d.metrics != nil {
		d.metrics.WriteRegistrySize(d.daemonID, d.registry.Len())
	}
}

func (d *Dispatcher) hubAdded(ctx context.Context, msg HubMessage) {
	hub := msg.Hub()
	arrival, err := d.composer.HubAdded(ctx, hub)
	if err != nil {
		d.logger.Error("hub arrival failed", "hub", hub.ID(), "physical_id", msg.PhysicalID, "error", err)
		return
	}

	// a duplicate arrival may have cleared the cached controller's
	// replug marking; refresh readers
	if arrival.Duplicate {
		if ctrl, ok := d.registry.Lookup(dock.KeyOf(hub)); ok {
			d.inventory.Expose(ctrl)
		}
	}

	for _, parent := range []*dock.Device{arrival.Controller, arrival.LinkEndpoint} {
		if parent != nil {
			d.relink(parent)
		}
	}
}

// relink points attached devices naming parent's id at the live parent.
// They may have attached before it was composed, or to an instance torn
// down since.
func (d *Dispatcher) relink(parent *dock.Device) {
	for _, dev := range d.inventory.ByParent(parent.ID()) {
		if dev.Parent() != parent {
			dev.SetParent(parent)
			d.logger.Debug("attached device linked", "device", dev.ID(), "parent", parent.ID())
		}
	}
}

// unlink drops back-references to a destroyed parent while keeping its id,
// so the devices are linked again when the parent is recomposed.
func (d *Dispatcher) unlink(parentID string) {
	for _, dev := range d.inventory.ByParent(parentID) {
		if dev.Parent() != nil {
			dev.SetParentID(parentID)
		}
	}
}

func (d *Dispatcher) removed(msg RemovalMessage) {
	id := msg.ID()
	if ctrl := d.teardown.DeviceRemoved(id); ctrl != nil {
		d.logger.Info("dock removed", "hub", id, "controller", ctrl.ID())
		d.unlink(ctrl.ID())
		d.unlink(dock.LinkEndpointID(ctrl.ID()))
	}
	if dev, ok := d.inventory.Device(id); ok {
		d.inventory.Withdraw(dev)
	}
}

func (d *Dispatcher) attached(msg AttachMessage) {
	dev := msg.Device()
	if msg.ParentID != "" {
		if parent, ok := d.inventory.Device(msg.ParentID); ok {
			dev.SetParent(parent)
		} else {
			dev.SetParentID(msg.ParentID)
			d.logger.Debug("attached device waits for its parent",
				"device", msg.DeviceID,
				"parent", msg.ParentID,
			)
		}
	}
	d.inventory.Expose(dev)
}

func (d *Dispatcher) composite(ctx context.Context, req CompositeRequest) {
	d.expireOperations(time.Now())

	batch, missing := d.inventory.Resolve(req.DeviceIDs)
	if len(missing) > 0 {
		d.logger.Debug("composite batch names unknown devices",
			"operation", req.OperationID,
			"missing", missing,
		)
	}

	resp := CompositeResponse{
		OperationID: req.OperationID,
		Phase:       req.Phase,
		Missing:     missing,
	}
	if ctrl := d.sequencer.FindController(batch); ctrl != nil {
		resp.Controller = ctrl.ID()
	}

	var err error
	switch req.Phase {
	case PhasePrepare:
		var marked []*dock.Device
		marked, err = d.operation(req.OperationID).Prepare(batch)
		for _, dev := range marked {
			resp.Marked = append(resp.Marked, dev.ID())
			d.inventory.Expose(dev)
		}
	case PhaseCleanup:
		err = d.operation(req.OperationID).Cleanup(ctx, batch)
		delete(d.operations, req.OperationID)
	}

	if err != nil {
		resp.Error = err.Error()
		level := d.logger.Warn
		if errors.Is(err, dock.ErrRebootFailure) || errors.Is(err, dock.ErrLockFailure) {
			level = d.logger.Error
		}
		level("composite phase failed",
			"operation", req.OperationID,
			"phase", req.Phase,
			"error", err,
		)
	} else {
		resp.OK = true
	}
	d.reply(resp)
}

// operation returns the pending operation for id, starting one if needed.
func (d *Dispatcher) operation(id string) *dock.Operation {
	if p, ok := d.operations[id]; ok {
		return p.op
	}
	op := d.sequencer.Begin(id)
	d.operations[id] = &pendingOperation{op: op, started: time.Now()}
	return op
}

func (d *Dispatcher) expireOperations(now time.Time) {
	for id, p := range d.operations {
		if now.Sub(p.started) > operationTTL {
			d.logger.Warn("abandoning composite operation without cleanup",
				"operation", id,
				"phase", p.op.Phase(),
			)
			delete(d.operations, id)
		}
	}
}

func (d *Dispatcher) reply(resp CompositeResponse) {
	topic := mqtt.Topics{}.CompositeResponse(resp.OperationID)
	if err := d.bus.PublishJSON(topic, resp, false); err != nil {
		d.logger.Error("failed to publish composite response",
			"operation", resp.OperationID,
			"error", err,
		)
	}
}
