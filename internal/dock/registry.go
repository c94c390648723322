package dock

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the dock package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps topology keys to the controller created for that insertion.
//
// The Registry is the sole owner of cached controllers: removing an entry is
// the only way a controller is destroyed. It is an explicit store object
// created by the orchestrator and passed to every handler.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Writers are expected to be
//     serialized by the orchestrator's event loop; the lock lets readers
//     list entries while events are processed.
type Registry struct {
	mu      sync.RWMutex
	entries map[TopologyKey]*Device
	logger  Logger
}

// Entry is a registry mapping as returned by Entries.
type Entry struct {
	Key        TopologyKey
	Controller *Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[TopologyKey]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Lookup returns the controller registered under key. It has no side effects.
func (r *Registry) Lookup(key TopologyKey) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.entries[key]
	return dev, ok
}

// Insert registers controller under key.
// It refuses to overwrite an existing entry, since that would leak the
// previously owned controller, and returns ErrDuplicateRegistration.
func (r *Registry) Insert(key TopologyKey, controller *Device) error {
	r.mu.Lock()
	existing, ok := r.entries[key]
	if !ok {
		r.entries[key] = controller
	}
	r.mu.Unlock()

	if ok {
		r.logger.Warn("refusing duplicate controller registration",
			"key", key,
			"existing", existing.ID(),
			"rejected", controller.ID(),
		)
		return fmt.Errorf("%w: key %s", ErrDuplicateRegistration, key)
	}

	r.logger.Debug("controller registered", "key", key, "controller", controller.ID())
	return nil
}

// Remove deletes the entry for key and returns the controller it owned so the
// caller can destroy it. Removing an absent key returns nil.
func (r *Registry) Remove(key TopologyKey) *Device {
	r.mu.Lock()
	dev, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.logger.Debug("controller unregistered", "key", key, "controller", dev.ID())
	return dev
}

// Len returns the number of registered controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns all mappings ordered by key.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for k, d := range r.entries {
		entries = append(entries, Entry{Key: k, Controller: d})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}
