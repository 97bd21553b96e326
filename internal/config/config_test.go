package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 120*time.Second, cfg.LivenessTimeout)
	assert.Equal(t, 60*time.Second, cfg.OfferWindow)
	assert.Equal(t, 8, cfg.OfferFanout)
	assert.Equal(t, "drivers_geo", cfg.RedisGeoKey)
	assert.Equal(t, "driver-locations", cfg.KafkaTopic)
	assert.False(t, cfg.RunMigrations)
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("LIVENESS_TIMEOUT", "45s")
	t.Setenv("OFFER_WINDOW", "2m")
	t.Setenv("OFFER_FANOUT", "3")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092 ,")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 45*time.Second, cfg.LivenessTimeout)
	assert.Equal(t, 2*time.Minute, cfg.OfferWindow)
	assert.Equal(t, 3, cfg.OfferFanout)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadServerConfigRejectsBadValues(t *testing.T) {
	t.Setenv("OFFER_FANOUT", "0")
	t.Setenv("LIVENESS_TIMEOUT", "not-a-duration")

	_, err := LoadServerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OFFER_FANOUT")
	assert.Contains(t, err.Error(), "LIVENESS_TIMEOUT")
}
