package dock

import (
	"context"
	"fmt"
	"time"
)

// ComposerOptions holds the collaborators for a Composer.
type ComposerOptions struct {
	// Registry caches controllers by topology key. Required.
	Registry *Registry

	// Inventory receives exposed devices. Required.
	Inventory Inventory

	// Locker performs scoped acquisition for probing. Required.
	Locker Locker

	// Links decides whether a controller still needs a link endpoint.
	// If nil, the link is assumed to be down.
	Links LinkMonitor

	// Quirks applies names and capability flags. Optional.
	Quirks QuirkSource

	// Observer receives composition events. Optional.
	Observer Observer

	// Logger is optional structured logger.
	Logger Logger
}

// Composer binds freshly enumerated hubs to virtual controllers.
type Composer struct {
	registry  *Registry
	inventory Inventory
	locker    Locker
	links     LinkMonitor
	quirks    QuirkSource
	observer  Observer
	logger    Logger
}

// Arrival is the outcome of composing one hub arrival.
type Arrival struct {
	// Hub is always set when HubAdded succeeds.
	Hub *Device

	// Controller is set only when a controller was freshly created and registered.
	Controller *Device

	// LinkEndpoint is set when an endpoint was created under Controller.
	LinkEndpoint *Device

	// Duplicate is true when a controller already existed for the key.
	Duplicate bool
}

// NewComposer creates a composer.
func NewComposer(opts ComposerOptions) (*Composer, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	}
	if opts.Inventory == nil {
		return nil, fmt.Errorf("%w: inventory", ErrMissingDependency)
	}
	if opts.Locker == nil {
		return nil, fmt.Errorf("%w: locker", ErrMissingDependency)
	}

	c := &Composer{
		registry:  opts.Registry,
		inventory: opts.Inventory,
		locker:    opts.Locker,
		links:     opts.Links,
		quirks:    opts.Quirks,
		observer:  opts.Observer,
		logger:    opts.Logger,
	}
	if c.quirks == nil {
		c.quirks = nopQuirks{}
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// HubAdded composes the dock graph for a freshly enumerated hub.
//
// The hub is exposed as soon as it has been acquired, whatever happens
// afterwards. Controller and endpoint failures are logged and contained; the
// only error returned is ErrLockFailure when the hub itself cannot be
// acquired, in which case nothing is exposed.
func (c *Composer) HubAdded(ctx context.Context, hub *Device) (*Arrival, error) {
	c.quirks.Apply(hub)

	lock, err := c.locker.Acquire(ctx, hub)
	if err != nil {
		return nil, fmt.Errorf("%w: hub %s: %w", ErrLockFailure, hub.ID(), err)
	}
	defer c.release(hub, lock)

	c.inventory.Expose(hub)
	emit(c.observer, Event{Type: EventHubExposed, DeviceID: hub.ID(), Key: KeyOf(hub)})

	arrival := &Arrival{Hub: hub}
	if hub.HasFlag(FlagHasBridge) {
		c.composeController(ctx, hub, arrival)
	}

	// a dock discovered in a non-updatable state must not offer an
	// updatable controller
	if !hub.Updatable() && arrival.Controller != nil {
		arrival.Controller.clearUpdatableTree()
	}

	return arrival, nil
}

// composeController creates, probes and registers the controller behind hub.
func (c *Composer) composeController(ctx context.Context, hub *Device, arrival *Arrival) {
	key := KeyOf(hub)

	if existing, ok := c.registry.Lookup(key); ok {
		c.logger.Warn("ignoring already added dock", "key", key, "controller", existing.ID())
		// only the re-enumeration that follows an issued reboot completes
		// the replug
		if existing.finishReplug() {
			c.logger.Info("dock replug completed", "controller", existing.ID())
		}
		arrival.Duplicate = true
		emit(c.observer, Event{Type: EventDuplicateArrival, DeviceID: existing.ID(), Key: key})
		return
	}

	ctrl := newController(hub)
	c.quirks.Apply(ctrl)
	if err := c.probe(ctx, ctrl); err != nil {
		c.logger.Warn("failed to probe bridged devices", "key", key, "error", err)
		emit(c.observer, Event{Type: EventProbeFailed, DeviceID: ctrl.ID(), Key: key, Err: err})
		return
	}

	var endpoint *Device
	if c.needsLinkEndpoint(ctx, ctrl) {
		endpoint = newLinkEndpoint(ctrl)
		c.quirks.Apply(endpoint)
		ctrl.AddChild(endpoint)
		if err := c.probe(ctx, endpoint); err != nil {
			c.logger.Warn("failed to probe link endpoint", "key", key, "error", err)
			emit(c.observer, Event{Type: EventProbeFailed, DeviceID: endpoint.ID(), Key: key, Err: err})
		}
	}

	if err := c.registry.Insert(key, ctrl); err != nil {
		c.logger.Warn("dropping controller", "key", key, "error", err)
		ctrl.release()
		return
	}

	c.inventory.Expose(ctrl)
	emit(c.observer, Event{Type: EventControllerCreated, DeviceID: ctrl.ID(), Key: key})
	if endpoint != nil {
		c.inventory.Expose(endpoint)
		emit(c.observer, Event{Type: EventLinkEndpointCreated, DeviceID: endpoint.ID(), Key: key})
	}

	arrival.Controller = ctrl
	arrival.LinkEndpoint = endpoint
	c.logger.Info("dock composed",
		"key", key,
		"controller", ctrl.ID(),
		"link_endpoint", endpoint != nil,
	)
}

// needsLinkEndpoint reports whether ctrl should get a link endpoint child:
// the controller bridges a link and that link is not currently up.
func (c *Composer) needsLinkEndpoint(ctx context.Context, ctrl *Device) bool {
	if !ctrl.HasFlag(FlagHasBridge) {
		return false
	}
	if c.links == nil {
		return true
	}
	active, err := c.links.LinkActive(ctx, ctrl)
	if err != nil {
		c.logger.Warn("cannot determine link state, skipping link endpoint",
			"controller", ctrl.ID(),
			"error", err,
		)
		return false
	}
	return !active
}

// probe acquires and immediately releases dev.
func (c *Composer) probe(ctx context.Context, dev *Device) error {
	start := time.Now()
	lock, err := c.locker.Acquire(ctx, dev)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrProbeFailure, dev.Kind(), dev.ID(), err)
	}
	c.release(dev, lock)
	c.logger.Debug("device probed", "device", dev.ID(), "kind", dev.Kind(), "duration", time.Since(start))
	return nil
}

func (c *Composer) release(dev *Device, lock Lock) {
	if err := lock.Release(); err != nil {
		c.logger.Warn("failed to release device", "device", dev.ID(), "error", err)
	}
}
