package quirks

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/dockd/internal/dock"
)

// ErrInvalid is returned when a quirk file fails validation.
var ErrInvalid = errors.New("quirks: invalid quirk file")

// File is the on-disk layout of a quirk file.
type File struct {
	Docks []Entry `yaml:"docks"`
}

// Entry describes one dock model, matched by USB vendor and product id.
type Entry struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`

	// Model is informational and used in log messages.
	Model string `yaml:"model"`

	Hub          Role `yaml:"hub"`
	Controller   Role `yaml:"controller"`
	LinkEndpoint Role `yaml:"link_endpoint"`
}

// Role holds the overrides applied to one device kind of a model.
type Role struct {
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags"`
}

var _ dock.QuirkSource = (*Database)(nil)

type modelKey struct {
	vendorID  uint16
	productID uint16
}

// Database matches devices against known dock models and applies their
// names and capability flags. A hub with no matching entry gets nothing,
// so it stays a plain hub.
//
// Database is safe for concurrent use; Reload swaps the entry set
// atomically.
type Database struct {
	mu      sync.RWMutex
	entries map[modelKey]Entry
}

// New returns an empty database.
func New() *Database {
	return &Database{entries: make(map[modelKey]Entry)}
}

// Load reads and validates the quirk file at path.
func Load(path string) (*Database, error) {
	db := New()
	if err := db.Reload(path); err != nil {
		return nil, err
	}
	return db, nil
}

// Reload replaces the entry set with the contents of path. On error the
// existing entries are kept.
func (d *Database) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading quirk file: %w", err)
	}
	entries, err := parse(data)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.entries = entries
	d.mu.Unlock()
	return nil
}

// parse decodes and validates quirk file content.
func parse(data []byte) (map[modelKey]Entry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	entries := make(map[modelKey]Entry, len(f.Docks))
	for _, e := range f.Docks {
		entries[modelKey{e.VendorID, e.ProductID}] = e
	}
	return entries, nil
}

// Validate checks every entry and reports all problems at once.
func (f *File) Validate() error {
	var errs []string
	seen := make(map[modelKey]int, len(f.Docks))

	for i, e := range f.Docks {
		key := modelKey{e.VendorID, e.ProductID}
		if e.VendorID == 0 {
			errs = append(errs, fmt.Sprintf("docks[%d]: vendor_id is required", i))
		}
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Sprintf("docks[%d]: %04x:%04x already defined by docks[%d]",
				i, e.VendorID, e.ProductID, prev))
		}
		seen[key] = i

		for role, r := range map[string]Role{"hub": e.Hub, "controller": e.Controller, "link_endpoint": e.LinkEndpoint} {
			for _, flag := range r.Flags {
				if strings.TrimSpace(flag) == "" {
					errs = append(errs, fmt.Sprintf("docks[%d].%s: empty flag", i, role))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Lookup returns the entry for a model.
func (d *Database) Lookup(vendorID, productID uint16) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[modelKey{vendorID, productID}]
	return e, ok
}

// Len returns the number of known models.
func (d *Database) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Apply sets the name and flags for dev's kind from the matching model.
// Foreign devices and unknown models are left untouched.
func (d *Database) Apply(dev *dock.Device) {
	e, ok := d.Lookup(dev.VendorID(), dev.ProductID())
	if !ok {
		return
	}

	var role Role
	switch dev.Kind() {
	case dock.KindHub:
		role = e.Hub
	case dock.KindController:
		role = e.Controller
	case dock.KindLinkEndpoint:
		role = e.LinkEndpoint
	default:
		return
	}

	if role.Name != "" {
		dev.SetName(role.Name)
	}
	for _, flag := range role.Flags {
		dev.AddFlag(flag)
	}
}
