// Package config loads the server configuration from an optional YAML file
// with environment-variable fallbacks for the deployment-specific fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	URL  string `yaml:"url"`  // postgres DSN; takes precedence over Path
	Path string `yaml:"path"` // sqlite file
}

type EngineConfig struct {
	CheckInterval string `yaml:"check_interval"` // e.g. "60s"
	Workers       int    `yaml:"workers"`
}

type NotifyConfig struct {
	MaxRetry      int    `yaml:"max_retry"`
	RetryDelay    string `yaml:"retry_delay"` // e.g. "5s"
	Timeout       string `yaml:"timeout"`     // per-attempt deadline
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Load reads the YAML file at path (skipped when empty), then applies env
// fallbacks and defaults. Environment variables win only where the file left
// a field empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = getEnv("ADDR", ":8080")
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = getEnv("DB_PATH", "data/riskwatch.db")
	}
	if cfg.Engine.CheckInterval == "" {
		cfg.Engine.CheckInterval = "60s"
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Notify.MaxRetry == 0 {
		cfg.Notify.MaxRetry = 3
	}
	if cfg.Notify.RetryDelay == "" {
		cfg.Notify.RetryDelay = "5s"
	}
	if cfg.Notify.Timeout == "" {
		cfg.Notify.Timeout = "10s"
	}
	if cfg.Notify.MaxConcurrent == 0 {
		cfg.Notify.MaxConcurrent = 8
	}
	return cfg, nil
}

// CheckInterval parses the engine interval, falling back to one minute on a
// malformed value.
func (c *Config) CheckInterval() time.Duration {
	return parseDuration(c.Engine.CheckInterval, time.Minute)
}

// RetryDelay parses the notify retry delay, falling back to five seconds.
func (c *Config) RetryDelay() time.Duration {
	return parseDuration(c.Notify.RetryDelay, 5*time.Second)
}

// NotifyTimeout parses the per-attempt send deadline, falling back to ten
// seconds.
func (c *Config) NotifyTimeout() time.Duration {
	return parseDuration(c.Notify.Timeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
