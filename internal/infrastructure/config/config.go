package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for dockd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dock      DockConfig      `yaml:"dock"`
	Agent     AgentConfig     `yaml:"agent"`
}

// DaemonConfig identifies this dockd instance.
type DaemonConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DockConfig contains dock composition settings.
type DockConfig struct {
	// QuirksFile is the path to the dock model quirk database.
	// Empty means no quirks: every hub is treated as a plain hub.
	QuirksFile string `yaml:"quirks_file"`

	// WatchQuirks reloads the quirk file when it changes on disk.
	WatchQuirks bool `yaml:"watch_quirks"`

	// LinkSubsystem is the subsystem tag of high-speed link devices.
	// Default: "thunderbolt"
	LinkSubsystem string `yaml:"link_subsystem"`

	// TransportTimeout bounds each lock, reboot and link-state request
	// sent to the USB I/O agent.
	// Default: 5s
	TransportTimeout time.Duration `yaml:"transport_timeout"`

	// EventBuffer is the capacity of the hotplug event queue.
	// Default: 64
	EventBuffer int `yaml:"event_buffer"`

	// JournalRetention is how long journal entries are kept. Zero keeps
	// them forever.
	// Default: 720h
	JournalRetention time.Duration `yaml:"journal_retention"`
}

// AgentConfig controls supervision of the USB I/O agent process.
type AgentConfig struct {
	// Managed makes dockd start the agent and restart it when it exits.
	// Leave false when a service manager runs the agent.
	Managed bool `yaml:"managed"`

	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`

	// RestartDelay is the first restart backoff step, doubled per
	// consecutive failure up to MaxRestartDelay.
	// Default: 1s, 1m
	RestartDelay    time.Duration `yaml:"restart_delay"`
	MaxRestartDelay time.Duration `yaml:"max_restart_delay"`

	// MaxRestarts bounds consecutive restarts. 0 means unlimited.
	MaxRestarts int `yaml:"max_restarts"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOCKD_SECTION_KEY
// For example: DOCKD_DATABASE_PATH, DOCKD_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			ID:   "dockd-001",
			Name: "dockd",
		},
		Database: DatabaseConfig{
			Path:        "./data/dockd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dockd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Dock: DockConfig{
			WatchQuirks:      true,
			LinkSubsystem:    "thunderbolt",
			TransportTimeout: 5 * time.Second,
			EventBuffer:      64,
			JournalRetention: 30 * 24 * time.Hour,
		},
		Agent: AgentConfig{
			RestartDelay:    time.Second,
			MaxRestartDelay: time.Minute,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DOCKD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DOCKD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DOCKD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOCKD_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DOCKD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOCKD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("DOCKD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("DOCKD_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("DOCKD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Dock
	if v := os.Getenv("DOCKD_DOCK_QUIRKS_FILE"); v != "" {
		cfg.Dock.QuirksFile = v
	}

	// Agent
	if v := os.Getenv("DOCKD_AGENT_BINARY"); v != "" {
		cfg.Agent.Binary = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Daemon.ID == "" {
		errs = append(errs, "daemon.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Dock.LinkSubsystem == "" {
		errs = append(errs, "dock.link_subsystem is required")
	}
	if c.Dock.TransportTimeout <= 0 {
		errs = append(errs, "dock.transport_timeout must be positive")
	}
	if c.Agent.Managed && c.Agent.Binary == "" {
		errs = append(errs, "agent.binary is required when agent.managed is true")
	}
	if c.Agent.MaxRestarts < 0 {
		errs = append(errs, "agent.max_restarts must not be negative")
	}
	if c.Dock.JournalRetention < 0 {
		errs = append(errs, "dock.journal_retention must not be negative")
	}
	if c.Dock.EventBuffer < 1 {
		errs = append(errs, "dock.event_buffer must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
