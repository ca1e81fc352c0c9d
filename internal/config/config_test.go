package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/settings
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/settings", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 3, cfg.Database.MaxIdleConns)
	assert.Equal(t, 4, cfg.Dispatcher.Workers)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
  allowed_origins:
    - https://app.example.com
database:
  url: postgres://db/settings
  max_open_conns: 25
  max_idle_conns: 5
redis:
  url: redis://cache:6379
scheduler:
  base_url: https://scheduler.internal
  api_key: sched-key
lead_score:
  base_url: https://scoring.internal
  api_key: score-key
dispatcher:
  workers: 8
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.Equal(t, "https://scheduler.internal", cfg.Scheduler.BaseURL)
	assert.Equal(t, "sched-key", cfg.Scheduler.APIKey)
	assert.Equal(t, "https://scoring.internal", cfg.LeadScore.BaseURL)
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file/settings
`)
	t.Setenv("DATABASE_URL", "postgres://env/settings")
	t.Setenv("SCHEDULER_BASE_URL", "https://env-scheduler")
	t.Setenv("SERVER_HOST", "10.0.0.1")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/settings", cfg.Database.URL)
	assert.Equal(t, "https://env-scheduler", cfg.Scheduler.BaseURL)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-only/settings")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-only/settings", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
}
