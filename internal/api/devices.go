package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dockd/internal/dock"
)

// DockView is one composed dock as returned by GET /docks.
type DockView struct {
	Key        dock.TopologyKey `json:"key"`
	Hub        *dock.Snapshot   `json:"hub,omitempty"`
	Controller dock.Snapshot    `json:"controller"`
	Children   []dock.Snapshot  `json:"children"`
}

// handleListDevices returns exposed devices in exposure order.
//
// Query parameters:
//   - kind: hub, controller, link_endpoint or foreign
//   - subsystem: owning subsystem tag
//   - replug: true/false, filter on the will-replug marking
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("kind")
	subsystem := q.Get("subsystem")

	var replug *bool
	if v := q.Get("replug"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "replug must be true or false")
			return
		}
		replug = &b
	}

	devices := make([]dock.Snapshot, 0)
	for _, d := range s.inventory.List() {
		if kind != "" && string(d.Kind) != kind {
			continue
		}
		if subsystem != "" && d.Subsystem != subsystem {
			continue
		}
		if replug != nil && d.WillReplug != *replug {
			continue
		}
		devices = append(devices, d)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.inventory.Snapshot(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleListDocks returns every registry entry, sorted by key, with the
// controller's owned subtree flattened depth-first.
func (s *Server) handleListDocks(w http.ResponseWriter, _ *http.Request) {
	entries := s.registry.Entries()
	docks := make([]DockView, 0, len(entries))
	for _, e := range entries {
		view := DockView{
			Key:        e.Key,
			Controller: e.Controller.Snapshot(),
			Children:   []dock.Snapshot{},
		}
		if hub, ok := s.inventory.Snapshot(string(e.Key)); ok {
			view.Hub = &hub
		}
		view.Children = appendSubtree(view.Children, e.Controller)
		docks = append(docks, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"docks": docks, "count": len(docks)})
}

func appendSubtree(out []dock.Snapshot, dev *dock.Device) []dock.Snapshot {
	for _, child := range dev.Children() {
		out = append(out, child.Snapshot())
		out = appendSubtree(out, child)
	}
	return out
}
