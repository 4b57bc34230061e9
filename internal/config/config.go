package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// AppConfig holds epsd's process-level configuration: how it listens and
// which daemon's limits it serves. It is separate from the per-daemon
// Document a Source resolves: AppConfig governs the process, Document
// governs the admission gate.
type AppConfig struct {
	Server ServerConfig `yaml:"server"`
	Limits LimitsConfig `yaml:"limits"`
}

// ServerConfig controls the HTTP control surface.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
}

// LimitsConfig names the daemon whose limits this process enforces and
// where to find its eps_limits document.
type LimitsConfig struct {
	DaemonName string `yaml:"daemon_name"`
	Path       string `yaml:"path"`
}

var (
	instance *AppConfig
	once     sync.Once
)

// Get returns the process-wide singleton AppConfig, loading it from
// CONFIG_PATH (default "epsd.yaml") on first use.
func Get() *AppConfig {
	once.Do(func() {
		cfg, err := LoadAppConfig(getEnv("CONFIG_PATH", "epsd.yaml"))
		if err != nil {
			slog.Warn("config: failed to load app config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &AppConfig{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadAppConfig reads an AppConfig from a YAML file.
func LoadAppConfig(path string) (*AppConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg AppConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyEnvOverrides() {
	c.Server.Addr = getEnv("EPSD_ADDR", c.Server.Addr)
	c.Limits.DaemonName = getEnv("EPSD_DAEMON_NAME", c.Limits.DaemonName)
	c.Limits.Path = getEnv("EPSD_LIMITS_PATH", c.Limits.Path)

	if v := getEnvInt("EPSD_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("EPSD_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("EPSD_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownSec = v
	}
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.ShutdownSec == 0 {
		c.Server.ShutdownSec = 5
	}
	if c.Limits.DaemonName == "" {
		c.Limits.DaemonName = "analysisd"
	}
	if c.Limits.Path == "" {
		c.Limits.Path = "/etc/epsd/limits.yml"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
