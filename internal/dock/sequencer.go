package dock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultLinkSubsystem is the subsystem tag of devices in the high-speed
// link domain.
const DefaultLinkSubsystem = "thunderbolt"

// SequencerOptions holds the collaborators for a Sequencer.
type SequencerOptions struct {
	// Registry is consulted when the controller is not itself in a batch. Required.
	Registry *Registry

	// Locker acquires the controller before reboot. Required.
	Locker Locker

	// Rebooter issues the reboot command. Required.
	Rebooter Rebooter

	// LinkSubsystem is the subsystem tag identifying link-domain devices.
	// Default: "thunderbolt".
	LinkSubsystem string

	// Observer receives sequencing events. Optional.
	Observer Observer

	// Logger is optional structured logger.
	Logger Logger
}

// Sequencer coordinates the two-phase composite protocol so that a
// controller reboots only after dependent devices have been told they are
// about to be replugged.
type Sequencer struct {
	registry      *Registry
	locker        Locker
	rebooter      Rebooter
	linkSubsystem string
	observer      Observer
	logger        Logger
}

// NewSequencer creates a sequencer.
func NewSequencer(opts SequencerOptions) (*Sequencer, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	}
	if opts.Locker == nil {
		return nil, fmt.Errorf("%w: locker", ErrMissingDependency)
	}
	if opts.Rebooter == nil {
		return nil, fmt.Errorf("%w: rebooter", ErrMissingDependency)
	}

	s := &Sequencer{
		registry:      opts.Registry,
		locker:        opts.Locker,
		rebooter:      opts.Rebooter,
		linkSubsystem: opts.LinkSubsystem,
		observer:      opts.Observer,
		logger:        opts.Logger,
	}
	if s.linkSubsystem == "" {
		s.linkSubsystem = DefaultLinkSubsystem
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// FindController returns the dock controller relevant to batch, or nil.
// An exact kind match wins; otherwise the registry is consulted with each
// member's id in order.
func (s *Sequencer) FindController(batch []*Device) *Device {
	for _, dev := range batch {
		if dev.Kind() == KindController {
			return dev
		}
	}
	for _, dev := range batch {
		if ctrl, ok := s.registry.Lookup(TopologyKey(dev.ID())); ok {
			return ctrl
		}
	}
	return nil
}

// Begin starts a composite operation in the Idle phase.
func (s *Sequencer) Begin(id string) *Operation {
	return &Operation{id: id, seq: s, phase: PhaseIdle}
}

// Phase is the state of a composite operation.
type Phase int

// Operation phases.
const (
	PhaseIdle Phase = iota
	PhasePrepared
	PhaseCleaned
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePrepared:
		return "prepared"
	case PhaseCleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Operation is one composite multi-device operation.
// When the batch has a controller, Prepare must be called before Cleanup,
// and each only once.
type Operation struct {
	id  string
	seq *Sequencer

	mu    sync.Mutex
	phase Phase
}

// ID returns the operation id.
func (o *Operation) ID() string { return o.id }

// Phase returns the current phase.
func (o *Operation) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// settle moves the operation forward to next without ordering checks. Used
// when a batch has no controller, which always succeeds.
func (o *Operation) settle(next Phase) {
	o.mu.Lock()
	if o.phase < next {
		o.phase = next
	}
	o.mu.Unlock()
}

// advance moves from want to next, or reports ErrOutOfOrder.
func (o *Operation) advance(want, next Phase) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != want {
		return fmt.Errorf("%w: operation %s is %s, want %s", ErrOutOfOrder, o.id, o.phase, want)
	}
	o.phase = next
	return nil
}

// Prepare marks devices that will be replugged when the controller reboots.
//
// Members are walked in batch order. A link-domain member parented to the
// controller marks the controller and switches on marking for every later
// member parented to the controller; earlier members are left untouched.
// Parentage is matched by id, so devices attached to an earlier instance of
// a re-enumerated controller still count. It returns the devices whose
// marking changed.
func (o *Operation) Prepare(batch []*Device) ([]*Device, error) {
	s := o.seq
	ctrl := s.FindController(batch)
	if ctrl == nil {
		o.settle(PhasePrepared)
		return nil, nil
	}
	if err := o.advance(PhaseIdle, PhasePrepared); err != nil {
		return nil, err
	}

	var marked []*Device
	mark := func(dev *Device) {
		if dev.MarkWillReplug() {
			marked = append(marked, dev)
			emit(s.observer, Event{Type: EventReplugMarked, DeviceID: dev.ID()})
		}
	}

	remainingReplug := false
	for _, dev := range batch {
		// if the link is part of the transaction our family is leaving us
		if dev.Subsystem() == s.linkSubsystem {
			if dev.ParentID() != ctrl.ID() {
				continue
			}
			mark(ctrl)
			remainingReplug = true
			continue
		}
		if dev.ParentID() != ctrl.ID() {
			continue
		}
		if remainingReplug {
			mark(dev)
		}
	}

	s.logger.Debug("composite prepare complete",
		"operation", o.id,
		"controller", ctrl.ID(),
		"marked", len(marked),
	)
	return marked, nil
}

// Cleanup reboots the dock controller once downstream work has completed.
// It fails with ErrLockFailure or ErrRebootFailure; in both cases the
// operation still moves to PhaseCleaned and replug markings are kept.
// A batch without a controller succeeds in any phase.
func (o *Operation) Cleanup(ctx context.Context, batch []*Device) error {
	s := o.seq
	ctrl := s.FindController(batch)
	if ctrl == nil {
		o.settle(PhaseCleaned)
		return nil
	}
	if err := o.advance(PhasePrepared, PhaseCleaned); err != nil {
		return err
	}

	lock, err := s.locker.Acquire(ctx, ctrl)
	if err != nil {
		return fmt.Errorf("%w: controller %s: %w", ErrLockFailure, ctrl.ID(), err)
	}
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			s.logger.Warn("failed to release controller", "controller", ctrl.ID(), "error", relErr)
		}
	}()

	start := time.Now()
	if err := s.rebooter.Reboot(ctx, ctrl); err != nil {
		err = fmt.Errorf("%w: controller %s: %w", ErrRebootFailure, ctrl.ID(), err)
		emit(s.observer, Event{Type: EventRebootFailed, DeviceID: ctrl.ID(), Err: err, Duration: time.Since(start)})
		return err
	}

	ctrl.markRebooted()
	emit(s.observer, Event{Type: EventRebooted, DeviceID: ctrl.ID(), Duration: time.Since(start)})
	s.logger.Info("dock reboot issued", "operation", o.id, "controller", ctrl.ID())
	return nil
}
