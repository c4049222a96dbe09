package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// defaultMaxMessageBytes fits a national bzip2 mosaic with room to spare.
const defaultMaxMessageBytes = 8 << 20

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers         []string
	KafkaSourceTopic     string
	KafkaSinkTopic       string
	KafkaGroupID         string
	KafkaMaxMessageBytes int
	HTTPAddr             string
	LogLevel             string
	LogFormat            string
	ShutdownTimeout      time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxRateLimit float64 // requests per second

	// CatalogPath is the SQLite product catalog file. Empty disables it.
	CatalogPath string

	// MQTT alert publishing. An empty broker disables it.
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err2 := time.ParseDuration(mapboxTimeoutStr)
	if err2 != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	maxMessageBytes, err := parseMaxMessageBytes()
	if err != nil {
		return nil, err
	}

	logFormat := sharedcfg.EnvOrDefault("LOG_FORMAT", "json")
	if logFormat != "json" && logFormat != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: want json or text", logFormat)
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxRateLimit, err := parseMapboxRateLimit()
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:     sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-radar-mosaics"),
		KafkaSinkTopic:       sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "decoded-radar-products"),
		KafkaGroupID:         sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-mosaic-etl"),
		KafkaMaxMessageBytes: maxMessageBytes,
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            logFormat,
		ShutdownTimeout:      shutdownTimeout,
		BatchSize:            batchSize,
		BatchFlushInterval:   flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
		MapboxRateLimit: mapboxRateLimit,

		CatalogPath: os.Getenv("CATALOG_PATH"),

		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTClientID:    sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "storm-mosaic-etl"),
		MQTTTopicPrefix: sharedcfg.EnvOrDefault("MQTT_TOPIC_PREFIX", "radar/alerts"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// CatalogEnabled reports whether the SQLite product catalog is configured.
func (c *Config) CatalogEnabled() bool { return c.CatalogPath != "" }

// AlertsEnabled reports whether MQTT alert publishing is configured.
func (c *Config) AlertsEnabled() bool { return c.MQTTBroker != "" }

func parseMaxMessageBytes() (int, error) {
	s := os.Getenv("KAFKA_MAX_MESSAGE_BYTES")
	if s == "" {
		return defaultMaxMessageBytes, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid KAFKA_MAX_MESSAGE_BYTES %q: must be a positive integer", s)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func parseMapboxRateLimit() (float64, error) {
	s := sharedcfg.EnvOrDefault("MAPBOX_RATE_LIMIT", "10")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid MAPBOX_RATE_LIMIT %q: must be a non-negative number", s)
	}
	return n, nil
}
