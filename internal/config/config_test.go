package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/questsync/internal/config"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2, cfg.API.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.API.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Health.ProbeInterval)
	assert.Equal(t, "json", cfg.Queue.Backend)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")
	content := `{
		"api": {"base_url": "http://save.example.com", "timeout": 5000000000},
		"queue": {"backend": "sqlite"},
		"log": {"level": "debug"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("QUESTSYNC_API_BASE_URL", "http://env-wins.example.com")
	t.Setenv("QUESTSYNC_PROBE_INTERVAL", "10s")

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)

	// env beats file, file beats defaults
	assert.Equal(t, "http://env-wins.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "sqlite", cfg.Queue.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Health.ProbeInterval)
}

func TestLoadRejectsBadEnvValue(t *testing.T) {
	t.Setenv("QUESTSYNC_API_TIMEOUT", "not-a-duration")

	_, err := config.NewLoader("").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"zero timeout", func(c *config.Config) { c.API.Timeout = 0 }, "api.timeout"},
		{"negative retries", func(c *config.Config) { c.API.MaxRetries = -1 }, "api.max_retries"},
		{"unknown backend", func(c *config.Config) { c.Queue.Backend = "etcd" }, "queue.backend"},
		{"probe timeout above interval", func(c *config.Config) {
			c.Health.ProbeTimeout = time.Minute
		}, "probe_timeout"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
