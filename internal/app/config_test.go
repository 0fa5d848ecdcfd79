package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CSRF_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 720*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, "15 3 * * *", cfg.LedgerAuditCron)
	assert.False(t, cfg.MigrateOnStart)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "Europe/Stockholm", cfg.Location().String())
}

func TestLoadConfigRequiresCSRFSecret(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "Mars/Olympus")
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("PG_MAX_CONNS", "4")
	t.Setenv("MIGRATE_ON_START", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, int32(4), cfg.PGMaxConns)
	assert.True(t, cfg.MigrateOnStart)
}

func TestNilConfigLocation(t *testing.T) {
	var cfg *Config
	assert.Equal(t, time.Local, cfg.Location())
	assert.False(t, cfg.IsProduction())
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
