package dock

import (
	"testing"
)

func TestNew_CopiesInfo(t *testing.T) {
	flags := []string{"b", "a"}
	d := New(Info{
		ID:        "dev-1",
		Name:      "Dock",
		Kind:      KindForeign,
		Subsystem: "thunderbolt",
		Updatable: true,
		Flags:     flags,
	})
	flags[0] = "mutated"

	if d.ID() != "dev-1" {
		t.Errorf("ID() = %q, want %q", d.ID(), "dev-1")
	}
	if d.Subsystem() != "thunderbolt" {
		t.Errorf("Subsystem() = %q, want %q", d.Subsystem(), "thunderbolt")
	}
	if !d.Updatable() {
		t.Error("Updatable() = false, want true")
	}
	got := d.Flags()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Flags() = %v, want [a b]", got)
	}
}

func TestNewHub_StableID(t *testing.T) {
	a := testHub("usb:1-2", true)
	b := testHub("usb:1-2", true)
	c := testHub("usb:1-3", true)

	if a.ID() != b.ID() {
		t.Errorf("same physical path gave different ids: %q vs %q", a.ID(), b.ID())
	}
	if a.ID() == c.ID() {
		t.Error("different physical paths gave the same id")
	}
	if a.Kind() != KindHub {
		t.Errorf("Kind() = %q, want %q", a.Kind(), KindHub)
	}
	if KeyOf(a) != TopologyKey(a.ID()) {
		t.Errorf("KeyOf() = %q, want hub id", KeyOf(a))
	}
}

func TestDerivedIDs_Distinct(t *testing.T) {
	hub := HubID("usb:1-2")
	ctrl := ControllerID(hub)
	ep := LinkEndpointID(ctrl)

	if hub == ctrl || ctrl == ep || hub == ep {
		t.Errorf("derived ids collide: hub=%s ctrl=%s ep=%s", hub, ctrl, ep)
	}
	if ControllerID(hub) != ctrl {
		t.Error("ControllerID is not deterministic")
	}
}

func TestAddChild(t *testing.T) {
	parent := New(Info{ID: "p", Kind: KindController})
	child := New(Info{ID: "c", Kind: KindLinkEndpoint})

	parent.AddChild(child)
	parent.AddChild(child)

	if got := len(parent.Children()); got != 1 {
		t.Fatalf("len(Children()) = %d, want 1", got)
	}
	if child.Parent() != parent {
		t.Error("child.Parent() is not parent")
	}

	snap := parent.Snapshot()
	if len(snap.ChildIDs) != 1 || snap.ChildIDs[0] != "c" {
		t.Errorf("Snapshot().ChildIDs = %v, want [c]", snap.ChildIDs)
	}
	if child.Snapshot().ParentID != "p" {
		t.Errorf("child Snapshot().ParentID = %q, want %q", child.Snapshot().ParentID, "p")
	}
}

func TestHubID_CarriedFromHub(t *testing.T) {
	hub := NewHub("usb:2-1", Info{Name: "Dock"})
	ctrl := newController(hub)
	endpoint := newLinkEndpoint(ctrl)

	for _, d := range []*Device{hub, ctrl, endpoint} {
		if d.HubID() != hub.ID() {
			t.Errorf("%s HubID() = %q, want %q", d.Kind(), d.HubID(), hub.ID())
		}
	}
	if got := New(Info{ID: "x", Kind: KindForeign}).HubID(); got != "" {
		t.Errorf("foreign HubID() = %q, want empty", got)
	}
}

func TestSetParentID(t *testing.T) {
	parent := New(Info{ID: "p", Kind: KindController})
	d := New(Info{ID: "d", Kind: KindForeign})

	d.SetParentID("p")
	if d.Parent() != nil || d.ParentID() != "p" {
		t.Errorf("after SetParentID: parent = %v, id = %q", d.Parent(), d.ParentID())
	}
	if d.Snapshot().ParentID != "p" {
		t.Errorf("Snapshot().ParentID = %q, want p", d.Snapshot().ParentID)
	}

	d.SetParent(parent)
	if d.Parent() != parent || d.ParentID() != "p" {
		t.Error("SetParent() did not link the device")
	}
	d.SetParent(nil)
	if d.ParentID() != "" {
		t.Errorf("ParentID() = %q after SetParent(nil), want empty", d.ParentID())
	}
}

func TestRelease_ClearsTree(t *testing.T) {
	parent := New(Info{ID: "p", Kind: KindController})
	child := New(Info{ID: "c", Kind: KindLinkEndpoint})
	parent.AddChild(child)

	parent.release()

	if len(parent.Children()) != 0 {
		t.Error("children survived release")
	}
	if child.Parent() != nil {
		t.Error("child still points at released parent")
	}
}

func TestMarkWillReplug_Idempotent(t *testing.T) {
	d := New(Info{ID: "d"})

	if !d.MarkWillReplug() {
		t.Error("first MarkWillReplug() = false, want true")
	}
	if d.MarkWillReplug() {
		t.Error("second MarkWillReplug() = true, want false")
	}
	if !d.WillReplug() {
		t.Error("WillReplug() = false, want true")
	}

	d.ClearWillReplug()
	if d.WillReplug() {
		t.Error("WillReplug() = true after clear")
	}
}

func TestClearUpdatableTree(t *testing.T) {
	root := New(Info{ID: "r", Updatable: true})
	child := New(Info{ID: "c", Updatable: true})
	grandchild := New(Info{ID: "g", Updatable: true})
	root.AddChild(child)
	child.AddChild(grandchild)

	root.clearUpdatableTree()

	for _, d := range []*Device{root, child, grandchild} {
		if d.Updatable() {
			t.Errorf("%s still updatable", d.ID())
		}
	}
}
