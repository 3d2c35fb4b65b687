package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	DataDir   string          `yaml:"data_dir"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	ADB       ADBConfig       `yaml:"adb"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// SiteConfig contains installation-level metadata.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite settings for the Identity Registry and
// Execution Log. Sensors/actions/flows are stored as per-device JSON
// files under DataDir, not in this database (see internal/store).
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker          MQTTBrokerConfig    `yaml:"broker"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	QoS             int                 `yaml:"qos"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
	DiscoveryPrefix string              `yaml:"discovery_prefix"`
	StatePrefix     string              `yaml:"state_prefix"`
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

// HTTPConfig contains the minimal read-only HTTP surface settings
// (health, metrics, device listing — see internal/api).
type HTTPConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts HTTPTimeoutConfig `yaml:"timeouts"`
}

// HTTPTimeoutConfig contains HTTP server timeout settings.
type HTTPTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains settings for the optional sensor time-series export.
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

// ADBConfig contains Device Connection Manager (C2) settings.
type ADBConfig struct {
	// Binary is the path to the adb executable.
	Binary string `yaml:"binary"`

	// PreferredBackend names a backend ("subprocess", "persistent_shell",
	// "library"). adbtransport.New does not read it; the selector chooses
	// from measured latency alone.
	PreferredBackend string `yaml:"preferred_backend"`

	// ProbeInterval is validated as positive but not read by adbtransport,
	// whose selector probes the alternate backend on a fixed count of 50
	// operations.
	ProbeInterval int `yaml:"probe_interval"`

	// ScreenshotCacheTTL is not read by adbtransport, whose per-device
	// screenshot cache uses its own fixed TTL.
	ScreenshotCacheTTL time.Duration `yaml:"screenshot_cache_ttl"`

	// UIDumpCacheTTL is not read by any package; adbtransport keeps no
	// UI-hierarchy cache.
	UIDumpCacheTTL time.Duration `yaml:"ui_dump_cache_ttl"`

	// MaxUnlockAttempts is the cooldown interlock threshold.
	MaxUnlockAttempts int `yaml:"max_unlock_attempts"`

	// UnlockCooldown is how long the interlock blocks further attempts
	// once MaxUnlockAttempts is reached.
	UnlockCooldown time.Duration `yaml:"unlock_cooldown"`
}

// SchedulerConfig contains Flow Scheduler (C7) settings.
type SchedulerConfig struct {
	// UnlockDebounce is the per-device no-attempt window after an unlock
	// attempt (spec §5: 5s).
	UnlockDebounce time.Duration `yaml:"unlock_debounce"`

	// DefaultSleepGracePeriod is used when a device has none configured
	// (spec §4.7.5 default: 300s).
	DefaultSleepGracePeriod time.Duration `yaml:"default_sleep_grace_period"`

	// ActivityRingSize bounds the in-memory queue/exec/lock event ring
	// (spec §7: 100 entries).
	ActivityRingSize int `yaml:"activity_ring_size"`
}

// DeviceConfig contains per-device overrides keyed by stable device ID.
type DeviceConfig struct {
	StableDeviceID    string        `yaml:"stable_device_id"`
	AutoUnlockPIN     string        `yaml:"auto_unlock_pin"`
	SleepGracePeriod  time.Duration `yaml:"sleep_grace_period"`
	PreferredExecutor string        `yaml:"preferred_executor"` // server, android, auto
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SCRYER_SECTION_KEY
// For example: SCRYER_DATABASE_PATH, SCRYER_MQTT_HOST
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
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "scryer",
			Timezone: "UTC",
		},
		DataDir: "./data",
		Database: DatabaseConfig{
			Path:        "./data/scryer.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "scryer-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			DiscoveryPrefix: "homeassistant",
			StatePrefix:     "visual_mapper",
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: HTTPTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		ADB: ADBConfig{
			Binary:             "adb",
			ProbeInterval:      50,
			ScreenshotCacheTTL: 250 * time.Millisecond,
			UIDumpCacheTTL:     time.Second,
			MaxUnlockAttempts:  3,
			UnlockCooldown:     5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			UnlockDebounce:          5 * time.Second,
			DefaultSleepGracePeriod: 300 * time.Second,
			ActivityRingSize:        100,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SCRYER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCRYER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SCRYER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SCRYER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SCRYER_MQTT_PORT"); v != "" {
		if p, err := parsePort(v); err == nil {
			cfg.MQTT.Broker.Port = p
		}
	}
	if v := os.Getenv("SCRYER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SCRYER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SCRYER_MQTT_DISCOVERY_PREFIX"); v != "" {
		cfg.MQTT.DiscoveryPrefix = v
	}
	if v := os.Getenv("SCRYER_MQTT_USE_SSL"); v != "" {
		cfg.MQTT.Broker.TLS = v == "true" || v == "1"
	}

	if v := os.Getenv("SCRYER_HTTP_HOST"); v != "" {
		cfg.HTTP.Host = v
	}

	if v := os.Getenv("SCRYER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("SCRYER_ADB_BINARY"); v != "" {
		cfg.ADB.Binary = v
	}
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "http.port must be between 1 and 65535")
	}
	if c.ADB.Binary == "" {
		errs = append(errs, "adb.binary is required")
	}
	if c.ADB.ProbeInterval <= 0 {
		errs = append(errs, "adb.probe_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeouts.Idle) * time.Second
}

// DeviceOverride looks up the per-device config override for a stable
// device ID, returning (override, true) if configured.
func (c *Config) DeviceOverride(sdid string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.StableDeviceID == sdid {
			return d, true
		}
	}
	return DeviceConfig{}, false
}
