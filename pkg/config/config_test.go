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

	assert.Equal(t, "localhost:8123", cfg.ClickHouse.Addr)
	assert.Equal(t, "clickhouse_detected_anomalies", cfg.ClickHouse.View)
	assert.Equal(t, 60*time.Second, cfg.Ollama.Timeout)
	assert.Equal(t, DefaultUploadUserID, cfg.HTTP.UploadUserID)
	assert.Equal(t, "vehicle/+/obd", cfg.MQTT.TelemetryTopic)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Ingest.FlushInterval)
	assert.Empty(t, cfg.HTTP.UploadChannelColumns)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLICKHOUSE_ADDR", "ch.internal:8123")
	t.Setenv("OLLAMA_MODEL", "llama3")
	t.Setenv("OLLAMA_TIMEOUT", "30s")
	t.Setenv("INGEST_BATCH_SIZE", "50")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("HTTP_UPLOAD_CHANNEL_COLUMNS", "engine_rpm=12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ch.internal:8123", cfg.ClickHouse.Addr)
	assert.Equal(t, "llama3", cfg.Ollama.Model)
	assert.Equal(t, 30*time.Second, cfg.Ollama.Timeout)
	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "engine_rpm=12", cfg.HTTP.UploadChannelColumns)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Ollama.Timeout = 0
	cfg.ClickHouse.Addr = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse.addr")
	assert.Contains(t, err.Error(), "ollama.timeout")
}

func TestValidateRejectsNonPositiveFlushInterval(t *testing.T) {
	t.Setenv("INGEST_FLUSH_INTERVAL", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.flush_interval")
}
