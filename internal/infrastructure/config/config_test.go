package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
data_dir: "/tmp/scryer-data"
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
http:
  host: "0.0.0.0"
  port: 8080
adb:
  binary: "adb"
  probe_interval: 50
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
data_dir: "/tmp/scryer-data"
database:
  path: "/tmp/test.db"
http:
  port: 8080
adb:
  binary: "adb"
  probe_interval: 50
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Site:     SiteConfig{ID: "site-001"},
			DataDir:  "/data",
			Database: DatabaseConfig{Path: "/data/scryer.db"},
			MQTT:     MQTTConfig{QoS: 1},
			HTTP:     HTTPConfig{Port: 8080},
			ADB:      ADBConfig{Binary: "adb", ProbeInterval: 50},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing data dir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.HTTP.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.HTTP.Port = 70000 }, wantErr: true},
		{name: "missing adb binary", mutate: func(c *Config) { c.ADB.Binary = "" }, wantErr: true},
		{name: "invalid probe interval", mutate: func(c *Config) { c.ADB.ProbeInterval = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
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
		HTTP: HTTPConfig{
			Timeouts: HTTPTimeoutConfig{
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

	t.Setenv("SCRYER_DATA_DIR", "/custom/data")
	t.Setenv("SCRYER_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SCRYER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SCRYER_MQTT_USERNAME", "testuser")
	t.Setenv("SCRYER_MQTT_PASSWORD", "testpass")
	t.Setenv("SCRYER_HTTP_HOST", "192.168.1.1")
	t.Setenv("SCRYER_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.DataDir != "/custom/data" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/custom/data")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.HTTP.Host != "192.168.1.1" {
		t.Errorf("HTTP.Host = %q, want %q", cfg.HTTP.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("defaultConfig HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
}

func TestDeviceOverride(t *testing.T) {
	cfg := &Config{
		Devices: []DeviceConfig{
			{StableDeviceID: "abc123", AutoUnlockPIN: "1234"},
		},
	}

	override, ok := cfg.DeviceOverride("abc123")
	if !ok {
		t.Fatal("expected override to be found")
	}
	if override.AutoUnlockPIN != "1234" {
		t.Errorf("AutoUnlockPIN = %q, want %q", override.AutoUnlockPIN, "1234")
	}

	if _, ok := cfg.DeviceOverride("nonexistent"); ok {
		t.Error("expected no override for unknown device")
	}
}
