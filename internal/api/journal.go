package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/dockd/internal/journal"
)

// handleListJournal returns dock events, most recent first.
//
// Query parameters:
//   - type: event type (controller_created, teardown, rebooted, ...)
//   - device_id: device id
//   - since: RFC 3339 timestamp
//   - limit: page size (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "event journal not configured")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Type:     q.Get("type"),
		DeviceID: q.Get("device_id"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list journal", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
