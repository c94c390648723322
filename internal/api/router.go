package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthTimeout bounds all component checks of one health request.
const healthTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		r.Get("/docks", s.handleListDocks)
		r.Get("/journal", s.handleListJournal)

		r.Get("/ws", s.handleWebSocket)
	})

	if s.exporter != nil {
		r.Method(http.MethodGet, "/metrics", s.exporter)
	}

	return r
}

// handleHealth runs every registered component check. Any failure turns the
// response into 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"devices":    s.inventory.Len(),
		"docks":      s.registry.Len(),
		"ws_clients": s.hub.ClientCount(),
		"components": components,
	})
}
