// dockd - dock composition daemon
//
// dockd turns raw USB hotplug events for docking stations into a stable
// logical device graph, and sequences multi-device firmware operations so
// that a dock's embedded controller and bridged link controller survive the
// bus churn an update causes.
//
// Hotplug events and transport requests travel over MQTT; the device
// inventory is served over HTTP and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/dockd/internal/agent"
	"github.com/nerrad567/dockd/internal/api"
	"github.com/nerrad567/dockd/internal/dock"
	"github.com/nerrad567/dockd/internal/hotplug"
	"github.com/nerrad567/dockd/internal/infrastructure/config"
	"github.com/nerrad567/dockd/internal/infrastructure/database"
	"github.com/nerrad567/dockd/internal/infrastructure/influxdb"
	"github.com/nerrad567/dockd/internal/infrastructure/logging"
	"github.com/nerrad567/dockd/internal/infrastructure/mqtt"
	"github.com/nerrad567/dockd/internal/inventory"
	"github.com/nerrad567/dockd/internal/journal"
	"github.com/nerrad567/dockd/internal/quirks"
	"github.com/nerrad567/dockd/internal/telemetry"
	"github.com/nerrad567/dockd/internal/transport"
	"github.com/nerrad567/dockd/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// journalRecorderBuffer is the number of dock events held before the
	// journal starts dropping them.
	journalRecorderBuffer = 256

	// journalPruneInterval is how often expired journal entries are removed.
	journalPruneInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon lifecycle, separated from main for testability.
//
// Components start in dependency order and stop in reverse via defers.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting dockd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("daemon_id", cfg.Daemon.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Quirks
	quirkDB, err := loadQuirks(cfg.Dock.QuirksFile)
	if err != nil {
		return fmt.Errorf("loading quirks: %w", err)
	}
	log.Info("quirk database loaded", "path", cfg.Dock.QuirksFile, "models", quirkDB.Len())
	if cfg.Dock.QuirksFile != "" && cfg.Dock.WatchQuirks {
		quirkWatcher, watchErr := quirks.NewWatcher(quirkDB, cfg.Dock.QuirksFile, log.Component("quirks"))
		if watchErr != nil {
			return fmt.Errorf("watching quirk file: %w", watchErr)
		}
		watchCtx, watchCancel := context.WithCancel(ctx)
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			quirkWatcher.Run(watchCtx)
		}()
		defer func() {
			watchCancel()
			<-watchDone
			if closeErr := quirkWatcher.Close(); closeErr != nil {
				log.Error("error closing quirk watcher", "error", closeErr)
			}
		}()
	}

	// Device graph
	dockLog := log.Component("dock")
	registry := dock.NewRegistry()
	registry.SetLogger(dockLog)

	store := inventory.NewStore()
	store.OnChange(inventory.NewMirror(mqttClient, log.Component("inventory")).Handle)

	remote := transport.NewRemote(mqttClient, transport.Options{
		Timeout: cfg.Dock.TransportTimeout,
		Logger:  log.Component("transport"),
	})
	if startErr := remote.Start(); startErr != nil {
		return fmt.Errorf("starting transport: %w", startErr)
	}
	defer func() {
		log.Info("stopping transport")
		if stopErr := remote.Stop(); stopErr != nil {
			log.Error("error stopping transport", "error", stopErr)
		}
	}()

	// Journal
	journalRepo := journal.NewSQLiteRepository(db.DB)
	recorder := journal.NewRecorder(journalRepo, journalRecorderBuffer, log.Component("journal"))
	bgCtx, bgCancel := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(bgCtx)
	}()
	defer func() {
		log.Info("flushing journal")
		bgCancel()
		<-recorderDone
	}()
	if cfg.Dock.JournalRetention > 0 {
		go pruneJournal(bgCtx, journalRepo, cfg.Dock.JournalRetention, log)
	}

	var metricsObserver dock.Observer
	if influxClient != nil {
		metricsObserver = hotplug.MetricsObserver(influxClient)
	}
	exporter := telemetry.New(cfg.Daemon.ID)
	observer := hotplug.Fanout(recorder, exporter, metricsObserver, hotplug.LogObserver(dockLog))

	composer, err := dock.NewComposer(dock.ComposerOptions{
		Registry:  registry,
		Inventory: store,
		Locker:    remote,
		Links:     remote,
		Quirks:    quirkDB,
		Observer:  observer,
		Logger:    dockLog,
	})
	if err != nil {
		return fmt.Errorf("creating composer: %w", err)
	}
	teardown, err := dock.NewTeardown(registry, store, observer, dockLog)
	if err != nil {
		return fmt.Errorf("creating teardown: %w", err)
	}
	sequencer, err := dock.NewSequencer(dock.SequencerOptions{
		Registry:      registry,
		Locker:        remote,
		Rebooter:      remote,
		LinkSubsystem: cfg.Dock.LinkSubsystem,
		Observer:      observer,
		Logger:        dockLog,
	})
	if err != nil {
		return fmt.Errorf("creating sequencer: %w", err)
	}

	// Hotplug dispatcher
	hotplugOpts := hotplug.Options{
		Bus:       mqttClient,
		Registry:  registry,
		Inventory: store,
		Composer:  composer,
		Teardown:  teardown,
		Sequencer: sequencer,
		QueueSize: cfg.Dock.EventBuffer,
		DaemonID:  cfg.Daemon.ID,
		Logger:    log.Component("hotplug"),
	}
	if influxClient != nil {
		hotplugOpts.Metrics = influxClient
	}
	dispatcher, err := hotplug.New(hotplugOpts)
	if err != nil {
		return fmt.Errorf("creating hotplug dispatcher: %w", err)
	}
	dispatchCtx, dispatchCancel := context.WithCancel(ctx)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()
	defer func() {
		dispatchCancel()
		<-dispatchDone
	}()
	if startErr := dispatcher.Start(); startErr != nil {
		return fmt.Errorf("starting hotplug dispatcher: %w", startErr)
	}
	defer func() {
		log.Info("stopping hotplug dispatcher")
		dispatcher.Stop()
	}()
	log.Info("hotplug dispatcher started", "queue_size", cfg.Dock.EventBuffer)

	if gaugeErr := registerGauges(exporter, store, registry, dispatcher, remote); gaugeErr != nil {
		return gaugeErr
	}

	// USB I/O agent (if managed). Started after the dispatcher subscribes so
	// the agent's initial enumeration is not lost.
	var supervisor *agent.Supervisor
	if cfg.Agent.Managed {
		supervisor, err = startAgent(ctx, cfg.Agent, log)
		if err != nil {
			return fmt.Errorf("starting USB agent: %w", err)
		}
		defer func() {
			log.Info("stopping USB agent")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping USB agent", "error", stopErr)
			}
		}()
	} else {
		log.Info("USB agent not managed")
	}

	// API server
	checks := map[string]api.HealthCheck{
		"database": db.HealthCheck,
		"mqtt":     mqttClient.HealthCheck,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}
	var agentStats api.AgentStats
	if supervisor != nil {
		checks["agent"] = supervisor.HealthCheck
		agentStats = supervisor
	}
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Inventory: store,
		Registry:  registry,
		Journal:   journalRepo,
		Checks:    checks,
		Hotplug:   dispatcher,
		Transport: remote,
		Agent:     agentStats,
		Exporter:  exporter.Handler(),
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, agent, dispatcher, journal flush,
	// transport, quirk watcher, MQTT, InfluxDB, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DOCKD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DOCKD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadQuirks reads the quirk database, or returns an empty one when no file
// is configured.
func loadQuirks(path string) (*quirks.Database, error) {
	if path == "" {
		return quirks.New(), nil
	}
	return quirks.Load(path)
}

// registerGauges exposes the daemon's live sizes on the Prometheus exporter.
func registerGauges(exporter *telemetry.Collector, store *inventory.Store, registry *dock.Registry,
	dispatcher *hotplug.Dispatcher, remote *transport.Remote) error {
	gauges := []struct {
		name, help string
		fn         func() int
	}{
		{"inventory_devices", "Devices currently exposed.", store.Len},
		{"registry_docks", "Cached dock controllers.", registry.Len},
		{"hotplug_queue_depth", "Hotplug events waiting to be handled.", dispatcher.QueueLen},
		{"transport_pending_requests", "Transport requests awaiting a reply.", remote.Pending},
	}
	for _, g := range gauges {
		if err := exporter.Gauge(g.name, g.help, g.fn); err != nil {
			return err
		}
	}
	return nil
}

// startAgent launches the USB I/O agent under supervision.
func startAgent(ctx context.Context, cfg config.AgentConfig, log *logging.Logger) (*agent.Supervisor, error) {
	supervisor, err := agent.New(agent.Config{
		Binary:          cfg.Binary,
		Args:            cfg.Args,
		RestartDelay:    cfg.RestartDelay,
		MaxRestartDelay: cfg.MaxRestartDelay,
		MaxRestarts:     cfg.MaxRestarts,
	})
	if err != nil {
		return nil, err
	}
	supervisor.SetLogger(log.Component("agent"))
	if err := supervisor.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("USB agent started", "binary", cfg.Binary, "pid", supervisor.Stats().PID)
	return supervisor, nil
}

// pruneJournal removes entries older than retention once at startup and
// then every journalPruneInterval until ctx is cancelled.
func pruneJournal(ctx context.Context, repo *journal.SQLiteRepository, retention time.Duration, log *logging.Logger) {
	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("journal prune failed", "error", err)
			}
			return
		}
		if n > 0 {
			log.Info("journal pruned", "removed", n, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy and
// returns the first failure.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
