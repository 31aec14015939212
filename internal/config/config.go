package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "github.com/TalApelfeld/AI-Smart-Crosswalk/common/config"

	"github.com/joho/godotenv"
)

// Config crosswalk-data settings (HTTP API, detection consumer, actuation).
type Config struct {
	HTTP struct {
		Addr        string
		MaxBodySize int64
	}
	DBEnabled    bool
	Database     commoncfg.DatabaseConfig
	RedisEnabled bool
	Redis        commoncfg.RedisConfig
	EventStream  EventStreamConfig
	Log          struct {
		Level  string
		Format string
	}
	MQTT     MQTTConfig
	NATS     NATSConfig
	LED      LEDConfig
	Tasks    TasksConfig
	Resolver ResolverConfig
}

// MQTTConfig detection ingest and event publishing over MQTT (disabled by default).
type MQTTConfig struct {
	Enabled          bool
	commoncfg.MQTTConfig
	DetectionTopic   string // e.g. crosswalk/+/detections
	EventTopicPrefix string // e.g. crosswalk/events
}

// NATSConfig event publishing over NATS (disabled by default).
type NATSConfig struct {
	Enabled bool
	commoncfg.NATSConfig
	SubjectPrefix string
}

// EventStreamConfig Redis stream sink for events, used when Redis is enabled.
// An empty Name disables it.
type EventStreamConfig struct {
	Name   string
	MaxLen int64
}

// LEDConfig outbound LED controller calls.
type LEDConfig struct {
	Timeout time.Duration
}

// TasksConfig background task runner.
type TasksConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type ResolverConfig struct {
	LockTTL time.Duration
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":3000")
	cfg.HTTP.MaxBodySize = int64(parseInt(getEnv("HTTP_MAX_BODY_BYTES", "10485760"), 10<<20))

	cfg.DBEnabled = parseBool(getEnv("DB_ENABLED", "true"), true)
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "smart_crosswalk"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = parseBool(getEnv("REDIS_ENABLED", "false"), false)
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.EventStream.Name = getEnv("REDIS_EVENT_STREAM", "crosswalk:events")
	cfg.EventStream.MaxLen = int64(parseInt(getEnv("REDIS_EVENT_STREAM_MAXLEN", "10000"), 10000))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.MQTT.Enabled = parseBool(getEnv("MQTT_ENABLED", "false"), false)
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "crosswalk-data"
	cfg.MQTT.QoS = 1
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	cfg.MQTT.DetectionTopic = getEnv("MQTT_DETECTION_TOPIC", "crosswalk/+/detections")
	cfg.MQTT.EventTopicPrefix = strings.TrimSuffix(getEnv("MQTT_EVENT_TOPIC_PREFIX", "crosswalk/events"), "/")

	cfg.NATS.Enabled = parseBool(getEnv("NATS_ENABLED", "false"), false)
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.Name = "crosswalk-data"
	cfg.NATS.ConnectTimeout = 5 * time.Second
	cfg.NATS.ReconnectWait = 2 * time.Second
	cfg.NATS.MaxReconnects = 10
	cfg.NATS.NATSConfig.LoadFromEnv("NATS")
	cfg.NATS.SubjectPrefix = strings.TrimSuffix(getEnv("NATS_SUBJECT_PREFIX", "crosswalk.events"), ".")

	cfg.LED.Timeout = parseDuration(getEnv("LED_TIMEOUT", "5s"), 5*time.Second)

	cfg.Tasks.Workers = parseInt(getEnv("TASK_WORKERS", "4"), 4)
	cfg.Tasks.QueueSize = parseInt(getEnv("TASK_QUEUE_SIZE", "256"), 256)
	cfg.Tasks.Timeout = parseDuration(getEnv("TASK_TIMEOUT", "15s"), 15*time.Second)

	cfg.Resolver.LockTTL = parseDuration(getEnv("RESOLVER_LOCK_TTL", "5s"), 5*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []string
	if c.HTTP.Addr == "" {
		errs = append(errs, "HTTP_ADDR must not be empty")
	}
	if c.LED.Timeout <= 0 {
		errs = append(errs, "LED_TIMEOUT must be positive")
	}
	if c.Tasks.Workers <= 0 {
		errs = append(errs, "TASK_WORKERS must be positive")
	}
	if c.Tasks.QueueSize <= 0 {
		errs = append(errs, "TASK_QUEUE_SIZE must be positive")
	}
	if c.Tasks.Timeout <= 0 {
		errs = append(errs, "TASK_TIMEOUT must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "MQTT_BROKER is required when MQTT_ENABLED=true")
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, "MQTT_QOS must be 0, 1 or 2")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "NATS_URL is required when NATS_ENABLED=true")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
