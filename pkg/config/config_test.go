package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(defaults())
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.HandlerTimeout)
	assert.Equal(t, 10, cfg.Server.StreamTicks)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "http://localhost:8000/a2a", cfg.Server.URL())
	assert.False(t, cfg.Payments.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	v := defaults()
	v.Set("server.port", 9000)
	v.Set("server.publicUrl", "https://agent.example.com/a2a")
	v.Set("payments.enabled", true)
	v.Set("payments.apiKey", "secret")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://agent.example.com/a2a", cfg.Server.URL())
	assert.Equal(t, "secret", cfg.Payments.APIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value any
	}{
		{"port out of range", "server.port", 70000},
		{"zero handler timeout", "server.handlerTimeout", 0},
		{"no stream ticks", "server.streaming.ticks", 0},
		{"blank name", "server.name", "  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := defaults()
			v.Set(tc.key, tc.value)

			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoadPaymentsRequiresIdentifiers(t *testing.T) {
	v := defaults()
	v.Set("payments.enabled", true)
	v.Set("payments.planId", "")

	_, err := Load(v)
	assert.Error(t, err)

	v.Set("payments.enabled", false)

	_, err = Load(v)
	assert.NoError(t, err)
}

func TestLoadArchiveRequiresEndpoint(t *testing.T) {
	v := defaults()
	v.Set("archive.enabled", true)

	_, err := Load(v)
	assert.Error(t, err)

	v.Set("archive.endpoint", "localhost:9000")

	_, err = Load(v)
	assert.NoError(t, err)
}
