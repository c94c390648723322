package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/dockd/internal/agent"
	"github.com/nerrad567/dockd/internal/dock"
)

// QueueStats reports the depth of a work queue. Satisfied by
// *hotplug.Dispatcher.
type QueueStats interface {
	QueueLen() int
}

// PendingStats reports outstanding requests. Satisfied by *transport.Remote.
type PendingStats interface {
	Pending() int
}

// AgentStats reports the supervised USB agent. Satisfied by
// *agent.Supervisor.
type AgentStats interface {
	Stats() agent.Stats
}

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Inventory     InventoryMetrics `json:"inventory"`
	Hotplug       *QueueMetrics    `json:"hotplug,omitempty"`
	Transport     *QueueMetrics    `json:"transport,omitempty"`
	Agent         *agent.Stats     `json:"agent,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// InventoryMetrics summarises the exposed devices.
type InventoryMetrics struct {
	Total         int            `json:"total"`
	ByKind        map[string]int `json:"by_kind"`
	PendingReplug int            `json:"pending_replug"`
	Docks         int            `json:"docks"`
}

// QueueMetrics is the depth of one internal queue.
type QueueMetrics struct {
	Depth int `json:"depth"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Inventory: InventoryMetrics{
			ByKind: make(map[string]int),
			Docks:  s.registry.Len(),
		},
	}

	for _, d := range s.inventory.List() {
		metrics.Inventory.Total++
		metrics.Inventory.ByKind[string(d.Kind)]++
		if d.WillReplug && d.Kind == dock.KindController {
			metrics.Inventory.PendingReplug++
		}
	}
	if s.hotplug != nil {
		metrics.Hotplug = &QueueMetrics{Depth: s.hotplug.QueueLen()}
	}
	if s.transport != nil {
		metrics.Transport = &QueueMetrics{Depth: s.transport.Pending()}
	}
	if s.agent != nil {
		st := s.agent.Stats()
		metrics.Agent = &st
	}

	writeJSON(w, http.StatusOK, metrics)
}
