package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
	assert.Contains(t, cfg.Browser.UserAgent, "Chrome/123.0.0.0")
	assert.Equal(t, "selector", cfg.Fetch.WaitStrategy)
	assert.Equal(t, 5*time.Second, cfg.Fetch.SettleDelay)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("FETCH_WAIT_STRATEGY", "fixed")
	t.Setenv("FETCH_SETTLE_DELAY", "8s")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "fixed", cfg.Fetch.WaitStrategy)
	assert.Equal(t, 8*time.Second, cfg.Fetch.SettleDelay)
	assert.True(t, cfg.Database.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("FETCH_SETTLE_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Fetch.SettleDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad wait strategy", func(c *Config) { c.Fetch.WaitStrategy = "poll" }},
		{"zero settle delay", func(c *Config) { c.Fetch.SettleDelay = 0 }},
		{"zero viewport", func(c *Config) { c.Browser.ViewportWidth = 0 }},
		{"db without name", func(c *Config) { c.Database.Host = "db"; c.Database.Name = "" }},
		{"redis without stream", func(c *Config) { c.Redis.Addr = "redis:6379"; c.Redis.Stream = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
