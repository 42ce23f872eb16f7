package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration (client side)
	API APIConfig `json:"api"`

	// Durable local save queue
	Queue QueueConfig `json:"queue"`

	// Health monitor behavior
	Health HealthConfig `json:"health"`

	// Server configuration (serve command)
	Server ServerConfig `json:"server"`

	// Logging
	Log LogConfig `json:"log"`
}

// APIConfig for save endpoint communication.
type APIConfig struct {
	BaseURL    string        `json:"base_url"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"` // retries after the first attempt
	RetryDelay time.Duration `json:"retry_delay"` // wait before the first retry, doubling after
	UserAgent  string        `json:"user_agent"`
}

// QueueConfig for the durable local save queue.
type QueueConfig struct {
	Dir     string `json:"dir"`
	Backend string `json:"backend"` // "json" or "sqlite"
}

// HealthConfig for the liveness probe loop.
type HealthConfig struct {
	ProbeInterval time.Duration `json:"probe_interval"`
	ProbeTimeout  time.Duration `json:"probe_timeout"`
}

// ServerConfig for the save endpoint server.
type ServerConfig struct {
	Addr        string `json:"addr"`
	DBPath      string `json:"db_path"`
	CatalogFile string `json:"catalog_file"`
	FixesFile   string `json:"fixes_file"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	File   string `json:"file"`   // log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".questsync"

	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8787",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			RetryDelay: 2 * time.Second,
			UserAgent:  "questsync/1.0",
		},
		Queue: QueueConfig{
			Dir:     filepath.Join(dataDir, "queue"),
			Backend: "json",
		},
		Health: HealthConfig{
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Server: ServerConfig{
			Addr:        ":8787",
			DBPath:      filepath.Join(dataDir, "progress.db"),
			CatalogFile: filepath.Join(dataDir, "catalog.json"),
			FixesFile:   filepath.Join(dataDir, "fixes.json"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative")
	}
	if c.API.RetryDelay <= 0 {
		return fmt.Errorf("api.retry_delay must be positive")
	}
	if c.Queue.Backend != "json" && c.Queue.Backend != "sqlite" {
		return fmt.Errorf("queue.backend must be json or sqlite, got %q", c.Queue.Backend)
	}
	if c.Queue.Dir == "" {
		return fmt.Errorf("queue.dir is required")
	}
	if c.Health.ProbeInterval <= 0 {
		return fmt.Errorf("health.probe_interval must be positive")
	}
	if c.Health.ProbeTimeout <= 0 || c.Health.ProbeTimeout >= c.Health.ProbeInterval {
		return fmt.Errorf("health.probe_timeout must be positive and below the probe interval")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}
