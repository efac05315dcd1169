package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./climated.sqlite", cfg.Database.Path)
	assert.Equal(t, "Local", cfg.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.TickInterval.Duration())
	assert.Equal(t, 4, cfg.Coordinator.Workers)
	assert.Equal(t, "memory", cfg.Device.Driver)
	assert.Equal(t, []string{"mon", "tue", "wed", "thu", "fri"}, cfg.Calendar.Workdays)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "@daily", cfg.Ledger.CleanupSchedule)
	assert.Equal(t, 30, cfg.Ledger.RetentionDays)
	assert.Equal(t, 4, cfg.EventBus.GetWorkers())
	assert.Equal(t, 100, cfg.EventBus.GetQueueSize())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("CLIMATED_HA_TOKEN", "secret")
	t.Setenv("CLIMATED_HA_URL", "")

	cfg, err := Parse([]byte(`
device:
  driver: homeassistant
  url: ${CLIMATED_HA_URL:http://homeassistant.local:8123}
  token: ${CLIMATED_HA_TOKEN}
  timeout: 3s
coordinator:
  tick_interval: 1m
`))
	require.NoError(t, err)

	assert.Equal(t, "http://homeassistant.local:8123", cfg.Device.URL)
	assert.Equal(t, "secret", cfg.Device.Token)
	assert.Equal(t, 3*time.Second, cfg.Device.Timeout.Duration())
	assert.Equal(t, time.Minute, cfg.Coordinator.TickInterval.Duration())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "device:\n  driver: zigbee\n"},
		{"homeassistant without url", "device:\n  driver: homeassistant\n"},
		{"bad duration", "coordinator:\n  tick_interval: soon\n"},
		{"malformed yaml", "api: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.Timezone = "Mars/Olympus_Mons"
	_, err = cfg.Location()
	assert.Error(t, err)
}
