package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Loader handles configuration loading from multiple sources: defaults,
// then an optional JSON file, then QUESTSYNC_* environment overrides.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader. An empty configPath means the
// default locations are probed.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "QUESTSYNC_",
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				if err := l.loadFile(cfg); err != nil {
					return nil, fmt.Errorf("load config file %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := l.loadEnv(cfg); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"questsync.json",
		".questsync.json",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "questsync", "config.json"),
			filepath.Join(homeDir, ".questsync", "config.json"),
		)
	}

	return paths
}

// loadFile reads config from a JSON file.
func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}

	return nil
}

// loadEnv overrides config from environment variables.
func (l *Loader) loadEnv(cfg *Config) error {
	if v := os.Getenv(l.envPrefix + "API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}

	if v := os.Getenv(l.envPrefix + "API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse API_TIMEOUT: %w", err)
		}
		cfg.API.Timeout = d
	}

	if v := os.Getenv(l.envPrefix + "API_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse API_MAX_RETRIES: %w", err)
		}
		cfg.API.MaxRetries = n
	}

	if v := os.Getenv(l.envPrefix + "QUEUE_DIR"); v != "" {
		cfg.Queue.Dir = v
	}

	if v := os.Getenv(l.envPrefix + "QUEUE_BACKEND"); v != "" {
		cfg.Queue.Backend = strings.ToLower(v)
	}

	if v := os.Getenv(l.envPrefix + "PROBE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PROBE_INTERVAL: %w", err)
		}
		cfg.Health.ProbeInterval = d
	}

	if v := os.Getenv(l.envPrefix + "SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv(l.envPrefix + "SERVER_DB"); v != "" {
		cfg.Server.DBPath = v
	}

	if v := os.Getenv(l.envPrefix + "CATALOG_FILE"); v != "" {
		cfg.Server.CatalogFile = v
	}

	if v := os.Getenv(l.envPrefix + "FIXES_FILE"); v != "" {
		cfg.Server.FixesFile = v
	}

	if v := os.Getenv(l.envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}

	if v := os.Getenv(l.envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}

	if v := os.Getenv(l.envPrefix + "LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	return nil
}
