package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
daemon:
  id: "bench-01"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
dock:
  quirks_file: "/etc/dockd/quirks.yaml"
  transport_timeout: 2s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Daemon.ID != "bench-01" {
		t.Errorf("Daemon.ID = %q, want %q", cfg.Daemon.ID, "bench-01")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Dock.QuirksFile != "/etc/dockd/quirks.yaml" {
		t.Errorf("Dock.QuirksFile = %q, want %q", cfg.Dock.QuirksFile, "/etc/dockd/quirks.yaml")
	}
	if cfg.Dock.TransportTimeout != 2*time.Second {
		t.Errorf("Dock.TransportTimeout = %v, want 2s", cfg.Dock.TransportTimeout)
	}
	// untouched keys keep their defaults
	if cfg.Dock.LinkSubsystem != "thunderbolt" {
		t.Errorf("Dock.LinkSubsystem = %q, want %q", cfg.Dock.LinkSubsystem, "thunderbolt")
	}
	if cfg.Dock.EventBuffer != 64 {
		t.Errorf("Dock.EventBuffer = %d, want 64", cfg.Dock.EventBuffer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
daemon:
  id: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty daemon.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing daemon ID", func(c *Config) { c.Daemon.ID = "" }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"missing broker host", func(c *Config) { c.MQTT.Broker.Host = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"influx enabled without url", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Bucket = "dock"
		}, true},
		{"influx enabled", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://localhost:8086"
			c.InfluxDB.Bucket = "dock"
		}, false},
		{"empty link subsystem", func(c *Config) { c.Dock.LinkSubsystem = "" }, true},
		{"zero transport timeout", func(c *Config) { c.Dock.TransportTimeout = 0 }, true},
		{"zero event buffer", func(c *Config) { c.Dock.EventBuffer = 0 }, true},
		{"negative journal retention", func(c *Config) { c.Dock.JournalRetention = -time.Hour }, true},
		{"managed agent without binary", func(c *Config) { c.Agent.Managed = true }, true},
		{"managed agent", func(c *Config) {
			c.Agent.Managed = true
			c.Agent.Binary = "/usr/libexec/dockd-usb-agent"
		}, false},
		{"negative agent restarts", func(c *Config) { c.Agent.MaxRestarts = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DOCKD_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DOCKD_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DOCKD_MQTT_PORT", "8883")
	t.Setenv("DOCKD_MQTT_USERNAME", "testuser")
	t.Setenv("DOCKD_MQTT_PASSWORD", "testpass")
	t.Setenv("DOCKD_API_HOST", "192.168.1.1")
	t.Setenv("DOCKD_API_PORT", "not-a-number")
	t.Setenv("DOCKD_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DOCKD_DOCK_QUIRKS_FILE", "/srv/quirks.yaml")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 8090 {
		t.Errorf("API.Port = %d, want unparsable override ignored", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Dock.QuirksFile != "/srv/quirks.yaml" {
		t.Errorf("Dock.QuirksFile = %q, want %q", cfg.Dock.QuirksFile, "/srv/quirks.yaml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Daemon.ID == "" {
		t.Error("defaultConfig should have non-empty Daemon.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.Dock.TransportTimeout != 5*time.Second {
		t.Errorf("defaultConfig Dock.TransportTimeout = %v, want 5s", cfg.Dock.TransportTimeout)
	}
	if cfg.Dock.JournalRetention != 720*time.Hour {
		t.Errorf("defaultConfig Dock.JournalRetention = %v, want 720h", cfg.Dock.JournalRetention)
	}
	if cfg.Agent.Managed {
		t.Error("defaultConfig should not manage the agent")
	}
}
