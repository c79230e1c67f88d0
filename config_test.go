package fitAuth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, 2*time.Second, cfg.Logout.Cooldown)
	assert.Equal(t, 500*time.Millisecond, cfg.Logout.ResetDelay)
	assert.Equal(t, DefaultEntryRoute, cfg.Logout.EntryRoute)
	assert.True(t, cfg.Restore.RejectExpiredTokens)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"redis without addr", func(c *Config) { c.Storage.Backend = StorageRedis }},
		{"negative redis ttl", func(c *Config) {
			c.Storage.Backend = StorageRedis
			c.Storage.RedisAddr = "127.0.0.1:6379"
			c.Storage.RedisTTL = -time.Second
		}},
		{"file without path", func(c *Config) { c.Storage.Backend = StorageFile }},
		{"prefix with space", func(c *Config) { c.Storage.KeyPrefix = "fit auth" }},
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }},
		{"negative cooldown", func(c *Config) { c.Logout.Cooldown = -time.Second }},
		{"negative reset delay", func(c *Config) { c.Logout.ResetDelay = -time.Second }},
		{"empty entry route", func(c *Config) { c.Logout.EntryRoute = " " }},
		{"negative skew", func(c *Config) { c.Restore.ClockSkew = -time.Second }},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FITAUTH_STORAGE_BACKEND", "file")
	t.Setenv("FITAUTH_STORAGE_FILE_PATH", filepath.Join(t.TempDir(), "creds.yaml"))
	t.Setenv("FITAUTH_API_BASE_URL", "https://api.fit.dev")
	t.Setenv("FITAUTH_LOGOUT_COOLDOWN", "5s")
	t.Setenv("FITAUTH_METRICS_ENABLED", "true")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, "https://api.fit.dev", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Logout.Cooldown)
	assert.True(t, cfg.Metrics.Enabled)
	// Unset values keep their defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.Logout.ResetDelay)
	assert.Equal(t, "fitauth", cfg.Storage.KeyPrefix)
}

func TestLoadConfigFromDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FITAUTH_LOGOUT_ENTRY_ROUTE=welcome\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FITAUTH_LOGOUT_ENTRY_ROUTE") })

	cfg, err := LoadConfigFromEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "welcome", cfg.Logout.EntryRoute)
}

func TestLoadConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("FITAUTH_STORAGE_BACKEND", "redis")
	t.Setenv("FITAUTH_STORAGE_REDIS_ADDR", "")

	_, err := LoadConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("FITAUTH_STORAGE_BACKEND", "memory")
	t.Setenv("FITAUTH_LOGOUT_COOLDOWN", "soon")
	_, err = LoadConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
