package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Observation and prediction topics
	MQTTTopicDHT        string
	MQTTTopicAPI        string
	MQTTTopicPrediction string

	// ClickHouse Configuration
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// Coefficient table selection
	ModelID    string
	ModelPath  string
	ModelWatch bool

	// Channel sizes
	ObservationBuffer int
	PredictionBuffer  int

	// Prometheus endpoint; empty disables it
	MetricsAddr string

	LogLevel string

	// Problems found while reading the environment; defaults were used
	Warnings []string
}

// Load reads the configuration from the environment, loading .env first
// if it exists
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.MQTTBroker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTTClientID = getEnv("MQTT_CLIENT_ID", "weather-coef")
	cfg.MQTTUsername = getEnv("MQTT_USERNAME", "")
	cfg.MQTTPassword = getEnv("MQTT_PASSWORD", "")

	cfg.MQTTTopicDHT = getEnv("MQTT_TOPIC_DHT", "sensor/+/dht")
	cfg.MQTTTopicAPI = getEnv("MQTT_TOPIC_API", "weather/+/api")
	cfg.MQTTTopicPrediction = getEnv("MQTT_TOPIC_PREDICTION", "prediction/{device_id}")

	cfg.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", "localhost:9000")
	cfg.ClickHouseDB = getEnv("CLICKHOUSE_DB", "weather")
	cfg.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
	cfg.ClickHousePass = getEnv("CLICKHOUSE_PASS", "")

	cfg.ModelID = getEnv("MODEL_ID", "latest")
	cfg.ModelPath = getEnv("MODEL_PATH", "")
	cfg.ModelWatch = cfg.getEnvBool("MODEL_WATCH", true)

	cfg.ObservationBuffer = cfg.getEnvInt("OBSERVATION_BUFFER", 100)
	cfg.PredictionBuffer = cfg.getEnvInt("PREDICTION_BUFFER", 50)

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9100")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	return cfg
}

// NewLogger builds a production zap logger at the configured level
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		c.Warnings = append(c.Warnings, "invalid LOG_LEVEL "+strconv.Quote(c.LogLevel)+", using info")
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil || intValue < 0 {
		c.Warnings = append(c.Warnings, "failed to parse "+key+" as non-negative int, using default")
		return defaultValue
	}
	return intValue
}

func (c *Config) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		c.Warnings = append(c.Warnings, "failed to parse "+key+" as bool, using default")
		return defaultValue
	}
	return boolValue
}
