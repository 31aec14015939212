package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTP.Addr)
	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "smart_crosswalk", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "crosswalk:events", cfg.EventStream.Name)
	assert.Equal(t, int64(10000), cfg.EventStream.MaxLen)

	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "crosswalk/+/detections", cfg.MQTT.DetectionTopic)
	assert.Equal(t, "crosswalk/events", cfg.MQTT.EventTopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "crosswalk.events", cfg.NATS.SubjectPrefix)

	assert.Equal(t, 5*time.Second, cfg.LED.Timeout)
	assert.Equal(t, 4, cfg.Tasks.Workers)
	assert.Equal(t, 256, cfg.Tasks.QueueSize)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "cw")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_EVENT_TOPIC_PREFIX", "cw/events/")
	t.Setenv("LED_TIMEOUT", "2s")
	t.Setenv("TASK_WORKERS", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "cw", cfg.Database.Database)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "cw/events", cfg.MQTT.EventTopicPrefix)
	assert.Equal(t, 2*time.Second, cfg.LED.Timeout)
	assert.Equal(t, 8, cfg.Tasks.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Contains(t, cfg.Database.GetDSN(), "host=db port=6543")
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("LED_TIMEOUT", "soon")
	t.Setenv("TASK_WORKERS", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.LED.Timeout)
	assert.Equal(t, 4, cfg.Tasks.Workers)
}

func TestValidate(t *testing.T) {
	os.Clearenv()
	t.Setenv("TASK_WORKERS", "0")
	t.Setenv("LED_TIMEOUT", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TASK_WORKERS")
	assert.Contains(t, err.Error(), "LED_TIMEOUT")
}
