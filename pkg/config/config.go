package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied before any file or environment override.
const (
	DefaultPort           = 8889
	DefaultMetricsAddr    = ":9600"
	DefaultBufferCapacity = 1024
)

// Config holds broker configuration. Precedence, lowest to highest:
// defaults, YAML file, environment, CLI flags.
type Config struct {
	// Port is the TCP port the broker listens on.
	Port int `yaml:"port"`

	// MetricsAddr is the address of the metrics and health HTTP server.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// BufferCapacity is the per-topic broadcast fan-out capacity. A
	// subscriber falling further behind than this is dropped with a lag
	// notice.
	BufferCapacity int `yaml:"buffer_capacity"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		MetricsAddr:    DefaultMetricsAddr,
		BufferCapacity: DefaultBufferCapacity,
		LogLevel:       "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if path is non-empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Addr returns the broker listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate checks the configuration for values the broker cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("config: buffer capacity must be positive, got %d", c.BufferCapacity)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("ZAICHIK_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("ZAICHIK_BUFFER_CAPACITY"); v != "" {
		capacity, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid ZAICHIK_BUFFER_CAPACITY %q: %w", v, err)
		}
		c.BufferCapacity = capacity
	}
	if v := os.Getenv("ZAICHIK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ZAICHIK_LOG_JSON"); v != "" {
		logJSON, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid ZAICHIK_LOG_JSON %q: %w", v, err)
		}
		c.LogJSON = logJSON
	}
	return nil
}
