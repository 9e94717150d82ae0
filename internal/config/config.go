// Package config loads the Radar YAML configuration with environment
// overrides. The same file layout serves the server and the client; each
// binary reads the sections it cares about.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// ConfigError is fatal during startup only.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Reason
}

type Config struct {
	Listen    ListenConfig  `yaml:"listen"`
	Connect   ConnectConfig `yaml:"connect"`
	Reconnect bool          `yaml:"reconnect"`
	RunAs     RunAsConfig   `yaml:"run as"`

	// Definition and runtime paths.
	Checks   string `yaml:"checks"`
	Contacts string `yaml:"contacts"`
	Monitors string `yaml:"monitors"`
	Plugins  string `yaml:"plugins"`
	PidFile  string `yaml:"pidfile"`
	LogFile  string `yaml:"log file"`

	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Stream   StreamConfig   `yaml:"stream"`
}

// ListenConfig is where the server accepts clients.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// ConnectConfig is where the client connects to.
type ConnectConfig struct {
	To   string `yaml:"to"`
	Port int    `yaml:"port"`
}

// RunAsConfig names the expected owner of check programs and whether the
// client verifies it before spawning them.
type RunAsConfig struct {
	User             string `yaml:"user"`
	Group            string `yaml:"group"`
	EnforceOwnership bool   `yaml:"enforce ownership"`
}

// ServerConfig tunes the server's scheduling and queues.
type ServerConfig struct {
	PollingIntervalSec int  `yaml:"polling_interval_sec"`
	QueueSize          int  `yaml:"queue_size"`
	LogRuntime         bool `yaml:"log runtime"`
}

// MetricsConfig is the HTTP sidecar exposing /metrics and status APIs.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RedisConfig configures the last-status store plugin.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig configures the reply history plugin.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// StreamConfig configures the websocket reply stream plugin.
type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads the YAML file at path, then applies environment overrides
// and defaults. A missing file is not fatal: overrides and defaults still
// apply, so a fully env-configured deployment needs no file at all.
func Load(path string) (*Config, error) {
	cfg := &Config{Reconnect: true}

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("can't parse %s: %v", path, err)}
		}
	} else if !os.IsNotExist(err) {
		return nil, &ConfigError{Reason: fmt.Sprintf("can't open %s: %v", path, err)}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Listen.Address = getEnv("RADAR_LISTEN_ADDRESS", c.Listen.Address)
	c.Listen.Port = getEnvInt("RADAR_LISTEN_PORT", c.Listen.Port)
	c.Connect.To = getEnv("RADAR_CONNECT_TO", c.Connect.To)
	c.Connect.Port = getEnvInt("RADAR_CONNECT_PORT", c.Connect.Port)
	c.Reconnect = getEnvBool("RADAR_RECONNECT", c.Reconnect)
	c.RunAs.User = getEnv("RADAR_RUN_AS_USER", c.RunAs.User)
	c.RunAs.Group = getEnv("RADAR_RUN_AS_GROUP", c.RunAs.Group)

	c.Checks = getEnv("RADAR_CHECKS_DIR", c.Checks)
	c.Contacts = getEnv("RADAR_CONTACTS_DIR", c.Contacts)
	c.Monitors = getEnv("RADAR_MONITORS_DIR", c.Monitors)
	c.Plugins = getEnv("RADAR_PLUGINS_DIR", c.Plugins)
	c.LogFile = getEnv("RADAR_LOG_FILE", c.LogFile)
	c.PidFile = getEnv("RADAR_PID_FILE", c.PidFile)

	c.Metrics.Address = getEnv("RADAR_METRICS_ADDRESS", c.Metrics.Address)
	c.Redis.Address = getEnv("RADAR_REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnv("RADAR_REDIS_PASSWORD", c.Redis.Password)
	c.Postgres.DSN = getEnv("RADAR_POSTGRES_DSN", c.Postgres.DSN)
	c.Stream.Address = getEnv("RADAR_STREAM_ADDRESS", c.Stream.Address)
}

func (c *Config) applyDefaults() {
	if c.Listen.Address == "" {
		c.Listen.Address = "0.0.0.0"
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = 3333
	}
	if c.Connect.To == "" {
		c.Connect.To = "127.0.0.1"
	}
	if c.Connect.Port == 0 {
		c.Connect.Port = 3333
	}
	if c.Checks == "" {
		c.Checks = "/etc/radar/client/checks"
	}
	if c.Contacts == "" {
		c.Contacts = "/etc/radar/server/config/contacts"
	}
	if c.Monitors == "" {
		c.Monitors = "/etc/radar/server/config/monitors"
	}
	if c.Server.PollingIntervalSec == 0 {
		c.Server.PollingIntervalSec = 60
	}
	if c.Server.QueueSize == 0 {
		c.Server.QueueSize = 256
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9190"
	}
	if c.Stream.Address == "" {
		c.Stream.Address = ":9191"
	}
}

// ListenAddr is the host:port the server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Address, c.Listen.Port)
}

// ConnectAddr is the host:port the client dials.
func (c *Config) ConnectAddr() string {
	return fmt.Sprintf("%s:%d", c.Connect.To, c.Connect.Port)
}

// PollingInterval is the CHECK dispatch period.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Server.PollingIntervalSec) * time.Second
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
