package dock

import (
	"context"
	"errors"
	"testing"
)

type sequencerFixture struct {
	registry *Registry
	locker   *fakeLocker
	rebooter *fakeRebooter
	observer *recordingObserver
	seq      *Sequencer
	ctrl     *Device
	hub      *Device
}

func newSequencerFixture(t *testing.T) *sequencerFixture {
	t.Helper()
	f := &sequencerFixture{
		registry: NewRegistry(),
		locker:   newFakeLocker(),
		rebooter: &fakeRebooter{},
		observer: &recordingObserver{},
	}
	f.hub = testHub("usb:1-1", true, FlagHasBridge)
	f.ctrl = newController(f.hub)
	if err := f.registry.Insert(KeyOf(f.hub), f.ctrl); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	seq, err := NewSequencer(SequencerOptions{
		Registry: f.registry,
		Locker:   f.locker,
		Rebooter: f.rebooter,
		Observer: f.observer,
	})
	if err != nil {
		t.Fatalf("NewSequencer() error = %v", err)
	}
	f.seq = seq
	return f
}

// child returns a foreign device parented to the controller.
func (f *sequencerFixture) child(id, subsystem string) *Device {
	d := New(Info{ID: id, Kind: KindForeign, Subsystem: subsystem})
	d.SetParent(f.ctrl)
	return d
}

func TestNewSequencer_MissingDependencies(t *testing.T) {
	tests := []struct {
		name string
		opts SequencerOptions
	}{
		{"no registry", SequencerOptions{Locker: newFakeLocker(), Rebooter: &fakeRebooter{}}},
		{"no locker", SequencerOptions{Registry: NewRegistry(), Rebooter: &fakeRebooter{}}},
		{"no rebooter", SequencerOptions{Registry: NewRegistry(), Locker: newFakeLocker()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSequencer(tt.opts); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("NewSequencer() error = %v, want ErrMissingDependency", err)
			}
		})
	}
}

func TestFindController(t *testing.T) {
	f := newSequencerFixture(t)
	other := New(Info{ID: "other", Kind: KindController})
	stranger := New(Info{ID: "stranger", Kind: KindForeign})

	tests := []struct {
		name  string
		batch []*Device
		want  *Device
	}{
		{"empty", nil, nil},
		{"no match", []*Device{stranger}, nil},
		{"controller in batch", []*Device{stranger, f.ctrl}, f.ctrl},
		{"hub resolves via registry", []*Device{stranger, f.hub}, f.ctrl},
		{"kind match beats registry", []*Device{f.hub, other}, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.seq.FindController(tt.batch); got != tt.want {
				t.Errorf("FindController() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrepare_PositionDependentMarking(t *testing.T) {
	f := newSequencerFixture(t)
	before := f.child("before", "usb")
	link := f.child("link", DefaultLinkSubsystem)
	after := f.child("after", "usb")
	unrelated := New(Info{ID: "unrelated", Kind: KindForeign, Subsystem: "usb"})

	op := f.seq.Begin("op-1")
	marked, err := op.Prepare([]*Device{f.ctrl, before, link, after, unrelated})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if !f.ctrl.WillReplug() {
		t.Error("controller not marked")
	}
	if before.WillReplug() {
		t.Error("member preceding the link was marked")
	}
	if !after.WillReplug() {
		t.Error("member following the link was not marked")
	}
	if link.WillReplug() {
		t.Error("link member itself was marked")
	}
	if unrelated.WillReplug() {
		t.Error("member not parented to the controller was marked")
	}
	if len(marked) != 2 {
		t.Errorf("len(marked) = %d, want 2", len(marked))
	}
	if op.Phase() != PhasePrepared {
		t.Errorf("Phase() = %s, want prepared", op.Phase())
	}
}

func TestPrepare_LinkNotParentedIgnored(t *testing.T) {
	f := newSequencerFixture(t)
	foreignLink := New(Info{ID: "link", Kind: KindForeign, Subsystem: DefaultLinkSubsystem})
	after := f.child("after", "usb")

	op := f.seq.Begin("op-1")
	if _, err := op.Prepare([]*Device{f.hub, foreignLink, after}); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if f.ctrl.WillReplug() || after.WillReplug() {
		t.Error("link owned by another controller triggered marking")
	}
}

func TestPrepare_NoController(t *testing.T) {
	f := newSequencerFixture(t)
	op := f.seq.Begin("op-1")

	marked, err := op.Prepare([]*Device{New(Info{ID: "x"})})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(marked) != 0 {
		t.Errorf("len(marked) = %d, want 0", len(marked))
	}
}

func TestPrepare_MatchesParentByID(t *testing.T) {
	f := newSequencerFixture(t)
	stale := f.child("link", DefaultLinkSubsystem)
	early := New(Info{ID: "early", Kind: KindForeign, Subsystem: "usb"})
	early.SetParentID(f.ctrl.ID())

	// dock torn down and re-enumerated: same id, new object
	f.registry.Remove(KeyOf(f.hub))
	fresh := newController(f.hub)
	if err := f.registry.Insert(KeyOf(f.hub), fresh); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	op := f.seq.Begin("op-1")
	marked, err := op.Prepare([]*Device{fresh, stale, early})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(marked) != 2 || marked[0] != fresh || marked[1] != early {
		t.Errorf("marked = %v, want [controller early]", marked)
	}
}

func TestCleanup_RebootsOnce(t *testing.T) {
	f := newSequencerFixture(t)
	ctx := context.Background()
	batch := []*Device{f.ctrl}
	op := f.seq.Begin("op-1")

	if _, err := op.Prepare(batch); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := op.Cleanup(ctx, batch); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if len(f.rebooter.reboots) != 1 || f.rebooter.reboots[0] != f.ctrl.ID() {
		t.Errorf("reboots = %v, want [%s]", f.rebooter.reboots, f.ctrl.ID())
	}
	if f.locker.outstanding() != 0 {
		t.Errorf("outstanding locks = %d, want 0", f.locker.outstanding())
	}
	if op.Phase() != PhaseCleaned {
		t.Errorf("Phase() = %s, want cleaned", op.Phase())
	}
	if f.observer.count(EventRebooted) != 1 {
		t.Error("reboot not observed")
	}
}

func TestCleanup_NoController(t *testing.T) {
	f := newSequencerFixture(t)
	batch := []*Device{New(Info{ID: "x"})}
	op := f.seq.Begin("op-1")
	_, _ = op.Prepare(batch)

	if err := op.Cleanup(context.Background(), batch); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(f.rebooter.reboots) != 0 {
		t.Errorf("reboots = %v, want none", f.rebooter.reboots)
	}
}

func TestCleanup_NoControllerWithoutPrepare(t *testing.T) {
	f := newSequencerFixture(t)
	batch := []*Device{New(Info{ID: "x"})}
	op := f.seq.Begin("op-1")

	for i := 0; i < 2; i++ {
		if err := op.Cleanup(context.Background(), batch); err != nil {
			t.Fatalf("Cleanup() #%d error = %v", i+1, err)
		}
	}
	if op.Phase() != PhaseCleaned {
		t.Errorf("Phase() = %s, want cleaned", op.Phase())
	}
	if len(f.rebooter.reboots) != 0 {
		t.Errorf("reboots = %v, want none", f.rebooter.reboots)
	}
}

func TestCleanup_ArmsReplugCompletion(t *testing.T) {
	f := newSequencerFixture(t)
	link := f.child("link", DefaultLinkSubsystem)
	batch := []*Device{f.ctrl, link}
	op := f.seq.Begin("op-1")

	if _, err := op.Prepare(batch); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if f.ctrl.finishReplug() {
		t.Fatal("replug completed before the reboot was issued")
	}
	if err := op.Cleanup(context.Background(), batch); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if !f.ctrl.finishReplug() {
		t.Error("replug not completable after reboot")
	}
	if f.ctrl.WillReplug() {
		t.Error("marking kept after replug completed")
	}
}

func TestCleanup_LockFailure(t *testing.T) {
	f := newSequencerFixture(t)
	f.locker.failKind[KindController] = true
	batch := []*Device{f.ctrl}
	op := f.seq.Begin("op-1")
	_, _ = op.Prepare(batch)

	err := op.Cleanup(context.Background(), batch)
	if !errors.Is(err, ErrLockFailure) {
		t.Fatalf("Cleanup() error = %v, want ErrLockFailure", err)
	}
	if len(f.rebooter.reboots) != 0 {
		t.Error("reboot issued without the controller lock")
	}
	if op.Phase() != PhaseCleaned {
		t.Errorf("Phase() = %s, want cleaned", op.Phase())
	}
}

func TestCleanup_RebootFailure(t *testing.T) {
	f := newSequencerFixture(t)
	f.rebooter.err = errors.New("stall")
	batch := []*Device{f.ctrl}
	op := f.seq.Begin("op-1")
	_, _ = op.Prepare(batch)

	err := op.Cleanup(context.Background(), batch)
	if !errors.Is(err, ErrRebootFailure) {
		t.Fatalf("Cleanup() error = %v, want ErrRebootFailure", err)
	}
	if f.locker.outstanding() != 0 {
		t.Errorf("outstanding locks = %d, want 0", f.locker.outstanding())
	}
	if f.observer.count(EventRebootFailed) != 1 {
		t.Error("reboot failure not observed")
	}
}

func TestOperation_OutOfOrder(t *testing.T) {
	f := newSequencerFixture(t)
	ctx := context.Background()
	batch := []*Device{f.ctrl}

	op := f.seq.Begin("op-1")
	if err := op.Cleanup(ctx, batch); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Cleanup() before Prepare() error = %v, want ErrOutOfOrder", err)
	}
	if len(f.rebooter.reboots) != 0 {
		t.Error("reboot issued for out-of-order cleanup")
	}

	_, _ = op.Prepare(batch)
	if _, err := op.Prepare(batch); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("second Prepare() error = %v, want ErrOutOfOrder", err)
	}
	_ = op.Cleanup(ctx, batch)
	if err := op.Cleanup(ctx, batch); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("second Cleanup() error = %v, want ErrOutOfOrder", err)
	}
	if len(f.rebooter.reboots) != 1 {
		t.Errorf("reboots = %d, want 1", len(f.rebooter.reboots))
	}
}
