package quirks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/dockd/internal/dock"
)

const sampleQuirks = `
docks:
  - vendor_id: 0x413c
    product_id: 0xb06e
    model: "WD19TB"
    hub:
      flags: [has-bridge]
    controller:
      name: "WD19TB Embedded Controller"
      flags: [has-bridge]
    link_endpoint:
      name: "WD19TB Thunderbolt Controller"
  - vendor_id: 0x413c
    product_id: 0xb06f
    model: "WD19"
    hub:
      flags: [has-bridge]
    controller:
      name: "WD19 Embedded Controller"
`

func writeQuirks(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quirks.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write quirk file: %v", err)
	}
	return path
}

func hub(vid, pid uint16) *dock.Device {
	return dock.NewHub("usb:1-1", dock.Info{Name: "USB Hub", VendorID: vid, ProductID: pid, Updatable: true})
}

func TestLoad(t *testing.T) {
	db, err := Load(writeQuirks(t, sampleQuirks))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if db.Len() != 2 {
		t.Errorf("Len() = %d, want 2", db.Len())
	}

	e, ok := db.Lookup(0x413c, 0xb06e)
	if !ok {
		t.Fatal("Lookup() missed WD19TB")
	}
	if e.Model != "WD19TB" {
		t.Errorf("Model = %q, want WD19TB", e.Model)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "docks: [vendor_id: "},
		{"missing vendor", "docks:\n  - product_id: 1\n"},
		{"duplicate model", "docks:\n  - {vendor_id: 1, product_id: 2}\n  - {vendor_id: 1, product_id: 2}\n"},
		{"empty flag", "docks:\n  - vendor_id: 1\n    hub:\n      flags: [\"\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeQuirks(t, tt.content))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() succeeded for missing file")
	}
}

func TestApply_Hub(t *testing.T) {
	db, _ := Load(writeQuirks(t, sampleQuirks))
	h := hub(0x413c, 0xb06e)

	db.Apply(h)

	if !h.HasFlag(dock.FlagHasBridge) {
		t.Error("hub missing has-bridge")
	}
	if h.Name() != "USB Hub" {
		t.Errorf("Name() = %q, want unchanged", h.Name())
	}
}

func TestApply_ControllerAndEndpoint(t *testing.T) {
	db, _ := Load(writeQuirks(t, sampleQuirks))

	ctrl := dock.New(dock.Info{ID: "c", Kind: dock.KindController, VendorID: 0x413c, ProductID: 0xb06e})
	ep := dock.New(dock.Info{ID: "e", Kind: dock.KindLinkEndpoint, VendorID: 0x413c, ProductID: 0xb06e})
	db.Apply(ctrl)
	db.Apply(ep)

	if ctrl.Name() != "WD19TB Embedded Controller" {
		t.Errorf("controller Name() = %q", ctrl.Name())
	}
	if !ctrl.HasFlag(dock.FlagHasBridge) {
		t.Error("controller missing has-bridge")
	}
	if ep.Name() != "WD19TB Thunderbolt Controller" {
		t.Errorf("endpoint Name() = %q", ep.Name())
	}
}

func TestApply_UnknownAndForeign(t *testing.T) {
	db, _ := Load(writeQuirks(t, sampleQuirks))

	plain := hub(0x0bda, 0x5411)
	db.Apply(plain)
	if len(plain.Flags()) != 0 {
		t.Errorf("unknown hub got flags %v", plain.Flags())
	}

	foreign := dock.New(dock.Info{ID: "tbt", Kind: dock.KindForeign, VendorID: 0x413c, ProductID: 0xb06e})
	db.Apply(foreign)
	if len(foreign.Flags()) != 0 {
		t.Errorf("foreign device got flags %v", foreign.Flags())
	}
}

func TestReload_KeepsEntriesOnError(t *testing.T) {
	path := writeQuirks(t, sampleQuirks)
	db, _ := Load(path)

	if err := os.WriteFile(path, []byte("docks:\n  - product_id: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := db.Reload(path); err == nil {
		t.Fatal("Reload() accepted an invalid file")
	}
	if db.Len() != 2 {
		t.Errorf("Len() = %d after failed reload, want 2", db.Len())
	}
}
