package dock

import (
	"errors"
	"testing"
)

func TestRegistry_LookupAbsent(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup() found an entry in an empty registry")
	}
}

func TestRegistry_InsertLookup(t *testing.T) {
	r := NewRegistry()
	ctrl := New(Info{ID: "ctrl", Kind: KindController})

	if err := r.Insert("key", ctrl); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, ok := r.Lookup("key")
	if !ok || got != ctrl {
		t.Fatalf("Lookup() = %v, %v; want ctrl, true", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_InsertDuplicate(t *testing.T) {
	r := NewRegistry()
	first := New(Info{ID: "first", Kind: KindController})
	second := New(Info{ID: "second", Kind: KindController})

	if err := r.Insert("key", first); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	err := r.Insert("key", second)
	if !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("Insert() error = %v, want ErrDuplicateRegistration", err)
	}

	got, _ := r.Lookup("key")
	if got != first {
		t.Error("duplicate Insert() overwrote the existing controller")
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	ctrl := New(Info{ID: "ctrl", Kind: KindController})
	_ = r.Insert("key", ctrl)

	if got := r.Remove("key"); got != ctrl {
		t.Errorf("Remove() = %v, want ctrl", got)
	}
	if got := r.Remove("key"); got != nil {
		t.Errorf("second Remove() = %v, want nil", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_EntriesSorted(t *testing.T) {
	r := NewRegistry()
	for _, k := range []TopologyKey{"c", "a", "b"} {
		_ = r.Insert(k, New(Info{ID: string(k), Kind: KindController}))
	}

	entries := r.Entries()
	if len(entries) != 3 {
		t.Fatalf("len(Entries()) = %d, want 3", len(entries))
	}
	for i, want := range []TopologyKey{"a", "b", "c"} {
		if entries[i].Key != want {
			t.Errorf("Entries()[%d].Key = %q, want %q", i, entries[i].Key, want)
		}
	}
}
