package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RECORD_STORE_TIMEOUT_MS", "")
	t.Setenv("MANAGED_CLIENTS_TTL_SECONDS", "")
	t.Setenv("QUERY_EDIT_WINDOW_MINUTES", "")
	t.Setenv("DEFAULT_COMMISSION_RATE", "")

	cfg := Load()

	assert.Equal(t, 4*time.Second, cfg.RecordStoreTimeout)
	assert.Equal(t, 30*time.Second, cfg.ManagedClientsTTL)
	assert.Equal(t, 15*time.Minute, cfg.QueryEditWindow)
	assert.Equal(t, "1", cfg.DefaultCommissionRate.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECORD_STORE_TIMEOUT_MS", "1500")
	t.Setenv("MANAGED_CLIENTS_TTL_SECONDS", "5")
	t.Setenv("DEFAULT_COMMISSION_RATE", "1.75")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")

	cfg := Load()

	assert.Equal(t, 1500*time.Millisecond, cfg.RecordStoreTimeout)
	assert.Equal(t, 5*time.Second, cfg.ManagedClientsTTL)
	assert.Equal(t, "1.75", cfg.DefaultCommissionRate.String())
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("RECORD_STORE_TIMEOUT_MS", "soon")
	t.Setenv("DEFAULT_COMMISSION_RATE", "two percent")

	cfg := Load()

	assert.Equal(t, 4*time.Second, cfg.RecordStoreTimeout)
	assert.Equal(t, "1", cfg.DefaultCommissionRate.String())
}
