package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./data/wattsync.db", cfg.Database.Path)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Equal(t, 7, cfg.Sync.RegularDays)
	assert.Equal(t, 730, cfg.Sync.BackfillMaxDays)
	assert.Equal(t, 3, cfg.Sync.EmptyDaysThreshold)
	assert.Equal(t, 5, cfg.Sync.BackfillStartOffset)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "wattsync", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnv_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONTACT_USERNAME", "someone@example.com")
	t.Setenv("CONTACT_PASSWORD", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/other.db")
	t.Setenv("HA_URL", "http://homeassistant.local:8123")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "someone@example.com", cfg.Contact.Username)
	assert.Equal(t, "secret", cfg.Contact.Password)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, "http://homeassistant.local:8123", cfg.HomeAssistant.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Contact: ContactConfig{Username: "user", Password: "pass"},
			Sync:    SyncConfig{EmptyDaysThreshold: 3},
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Contact.Username = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Contact.Password = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Sync.EmptyDaysThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.MQTT.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = "localhost:1883"
	assert.NoError(t, cfg.Validate())
}
