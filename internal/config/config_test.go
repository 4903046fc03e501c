package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/annai/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, int64(1024*1024), cfg.MaxRequestBodyBytes)
	assert.Equal(t, 20, cfg.DefaultPageLimit)
	assert.NotEmpty(t, cfg.DatabaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ANNAI_PORT", "9090")
	t.Setenv("ANNAI_LOG_LEVEL", "debug")
	t.Setenv("ANNAI_SWEEP_INTERVAL", "1m")
	t.Setenv("ANNAI_RATE_LIMIT_ENABLED", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.False(t, cfg.RateLimitEnabled)
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.DatabaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg, _ = config.Load()
	cfg.MaxRequestBodyBytes = 0
	assert.Error(t, cfg.Validate())

	cfg, _ = config.Load()
	cfg.RateLimitEnabled = true
	cfg.RateLimitRPS = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ANNAI_PORT", "not-a-number")
	t.Setenv("ANNAI_READ_TIMEOUT", "soon")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
}
