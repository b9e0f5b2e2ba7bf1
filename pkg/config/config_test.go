package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"MQTT_TOPIC_DHT", "MODEL_ID", "MODEL_PATH", "MODEL_WATCH", "OBSERVATION_BUFFER", "LOG_LEVEL", "METRICS_ADDR"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "sensor/+/dht", cfg.MQTTTopicDHT)
	assert.Equal(t, "weather/+/api", cfg.MQTTTopicAPI)
	assert.Equal(t, "prediction/{device_id}", cfg.MQTTTopicPrediction)
	assert.Equal(t, "latest", cfg.ModelID)
	assert.Empty(t, cfg.ModelPath)
	assert.True(t, cfg.ModelWatch)
	assert.Equal(t, 100, cfg.ObservationBuffer)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MODEL_ID", "20250520_234357")
	t.Setenv("MODEL_PATH", "/etc/weather/model_coef.h")
	t.Setenv("MODEL_WATCH", "false")
	t.Setenv("OBSERVATION_BUFFER", "10")
	t.Setenv("MQTT_TOPIC_PREDICTION", "forecast/{device_id}")

	cfg := Load()
	assert.Equal(t, "20250520_234357", cfg.ModelID)
	assert.Equal(t, "/etc/weather/model_coef.h", cfg.ModelPath)
	assert.False(t, cfg.ModelWatch)
	assert.Equal(t, 10, cfg.ObservationBuffer)
	assert.Equal(t, "forecast/{device_id}", cfg.MQTTTopicPrediction)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MODEL_WATCH", "sometimes")
	t.Setenv("OBSERVATION_BUFFER", "-3")

	cfg := Load()
	assert.True(t, cfg.ModelWatch)
	assert.Equal(t, 100, cfg.ObservationBuffer)
	assert.Len(t, cfg.Warnings, 2)
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	cfg = &Config{LogLevel: "loud"}
	logger, err = cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.Len(t, cfg.Warnings, 1)
}
