package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.ListenAddr())
	assert.True(t, cfg.Server.RateLimit.IsEnabled())
	assert.Equal(t, 100, cfg.Server.RateLimit.PerMinute)
	assert.Equal(t, 10, cfg.Server.RateLimit.Burst)
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: "9090"
  rate_limit:
    enabled: false
    per_minute: 30
    burst: 3
logging:
  level: debug
  json: true
auth:
  enabled: true
  jwt_secret: topsecret
  api_keys:
    - name: ci
      key: abc123
      role: writer
storage:
  journal_log: /data/ledger.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.ListenAddr())
	assert.False(t, cfg.Server.RateLimit.IsEnabled())
	assert.Equal(t, 30, cfg.Server.RateLimit.PerMinute)
	assert.Equal(t, 3, cfg.Server.RateLimit.Burst)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "topsecret", cfg.Auth.JWTSecret)
	require.Len(t, cfg.Auth.APIKeys, 1)
	assert.Equal(t, "writer", cfg.Auth.APIKeys[0].Role)
	assert.Equal(t, "/data/ledger.db", cfg.Storage.JournalLog)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Contains(t, cfg.Server.AllowedOrigins, "https://app.example.com")
	assert.Contains(t, cfg.Server.AllowedOrigins, "https://admin.example.com")
}
