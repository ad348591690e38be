package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Bus       BusConfig
	Publisher PublisherConfig
	Playback  PlaybackConfig
	Data      DataConfig
	Influx    InfluxConfig
	Server    ServerConfig
}

// BusConfig holds message-bus configuration for both bus kinds
type BusConfig struct {
	Kind         string // "mqtt" or "kafka"
	Host         string
	Port         int
	Topic        string
	QoS          int
	Retain       bool
	ClientID     string
	KafkaBrokers []string
	KafkaGroupID string
}

// PublisherConfig holds replay-loop pacing and delivery settings
type PublisherConfig struct {
	RateDelay  time.Duration // minimum delay between messages
	RoundSleep time.Duration // sleep between full replay rounds
	AckTimeout time.Duration // bounded wait for transport acks
}

// PlaybackConfig holds consumer-side playback settings
type PlaybackConfig struct {
	Step         time.Duration // business time advanced per tick
	TickInterval time.Duration // wall-clock time between ticks
	LiveMode     bool          // skip playback, serve the live store
}

// DataConfig holds default data file locations
type DataConfig struct {
	CSVPath   string
	JSONLPath string
}

// InfluxDB sink, optional in live mode
type InfluxConfig struct {
	Enabled bool
	URL     string
	Org     string
	Token   string
	Bucket  string
}

// ServerConfig holds the consumer HTTP surface
type ServerConfig struct {
	Addr string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Bus: BusConfig{
			Kind:         getEnv("BUS_KIND", "mqtt"),
			Host:         getEnv("BROKER_HOST", "localhost"),
			Port:         getEnvInt("BROKER_PORT", 1883),
			Topic:        getEnv("BROKER_TOPIC", "openelectricity/feed"),
			QoS:          getEnvInt("BROKER_QOS", 1),
			Retain:       getEnvBool("BROKER_RETAIN", false),
			ClientID:     getEnv("BROKER_CLIENT_ID", "emissionfeed"),
			KafkaBrokers: getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaGroupID: getEnv("KAFKA_GROUP_ID", "emissionfeed-subscriber"),
		},
		Publisher: PublisherConfig{
			RateDelay:  getEnvDuration("PUBLISH_RATE_DELAY", 100*time.Millisecond),
			RoundSleep: getEnvDuration("PUBLISH_ROUND_SLEEP", 60*time.Second),
			AckTimeout: getEnvDuration("PUBLISH_ACK_TIMEOUT", 5*time.Second),
		},
		Playback: PlaybackConfig{
			Step:         getEnvDuration("PLAYBACK_STEP", 5*time.Minute),
			TickInterval: getEnvDuration("PLAYBACK_TICK", 1*time.Second),
			LiveMode:     getEnvBool("LIVE_MODE", false),
		},
		Data: DataConfig{
			CSVPath:   getEnv("DATA_CSV", "data/cleaned_data_mqtt.csv"),
			JSONLPath: getEnv("DATA_JSONL", "output/sub_received.jsonl"),
		},
		Influx: InfluxConfig{
			Enabled: getEnvBool("INFLUX_ENABLED", false),
			URL:     getEnv("INFLUX_URL", "http://localhost:8086"),
			Org:     getEnv("INFLUX_ORG", ""),
			Token:   getEnv("INFLUX_TOKEN", ""),
			Bucket:  getEnv("INFLUX_BUCKET", "emissionfeed"),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
	}

	if cfg.Bus.QoS < 0 || cfg.Bus.QoS > 2 {
		return nil, fmt.Errorf("BROKER_QOS must be 0, 1, or 2 (got %d)", cfg.Bus.QoS)
	}
	switch cfg.Bus.Kind {
	case "mqtt", "kafka":
	default:
		return nil, fmt.Errorf("BUS_KIND must be mqtt or kafka (got %q)", cfg.Bus.Kind)
	}
	if cfg.Playback.Step <= 0 {
		return nil, fmt.Errorf("PLAYBACK_STEP must be positive (got %s)", cfg.Playback.Step)
	}
	if cfg.Playback.TickInterval <= 0 {
		return nil, fmt.Errorf("PLAYBACK_TICK must be positive (got %s)", cfg.Playback.TickInterval)
	}
	return cfg, nil
}

// WithClientSuffix returns a copy of the bus config whose client identity
// is base-suffix. Each binary connects under its own suffix: brokers
// disconnect the older session when two clients share an ID.
func (b BusConfig) WithClientSuffix(suffix string) BusConfig {
	b.ClientID = b.ClientID + "-" + suffix
	return b
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.Split(value, ",")
	}
	return defaultValue
}
