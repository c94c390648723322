package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/dockd/internal/dock"
	"github.com/nerrad567/dockd/internal/infrastructure/config"
	"github.com/nerrad567/dockd/internal/infrastructure/logging"
	"github.com/nerrad567/dockd/internal/inventory"
	"github.com/nerrad567/dockd/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthCheck reports whether one component is healthy.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Inventory *inventory.Store
	Registry  *dock.Registry
	Journal   journal.Repository     // optional
	Checks    map[string]HealthCheck // optional, keyed by component name
	Hotplug   QueueStats             // optional
	Transport PendingStats           // optional
	Agent     AgentStats             // optional
	Exporter  http.Handler           // optional, served at /metrics
	Version   string
}

// Server is the HTTP API server for dockd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	inventory *inventory.Store
	registry  *dock.Registry
	journal   journal.Repository
	checks    map[string]HealthCheck
	hotplug   QueueStats
	transport PendingStats
	agent     AgentStats
	exporter  http.Handler
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Inventory == nil {
		return nil, fmt.Errorf("inventory is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("dock registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		inventory: deps.Inventory,
		registry:  deps.Registry,
		journal:   deps.Journal,
		checks:    deps.Checks,
		hotplug:   deps.Hotplug,
		transport: deps.Transport,
		agent:     deps.Agent,
		exporter:  deps.Exporter,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}

	deps.Inventory.OnChange(s.broadcastChange)
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// broadcastChange relays inventory changes to WebSocket clients.
func (s *Server) broadcastChange(c inventory.Change) {
	s.hub.Broadcast(ChannelInventory, c)
}
