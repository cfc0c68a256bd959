package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every operational knob, loaded from the environment once at
// startup. Zero values fall back to the defaults documented per field.
type Config struct {
	Environment string // "development", "staging", "production"
	HTTPPort    int    // port the API and webhook listen on
	LogLevel    string // zap level name

	Database DatabaseConfig
	Channel  ChannelConfig
	Sync     SyncConfig
	Orders   OrderConfig
	Tracing  TracingConfig
}

type DatabaseConfig struct {
	Driver string // "sqlite" (default) or "postgres"
	DSN    string
}

// ChannelConfig controls the persistent event-channel connection.
type ChannelConfig struct {
	Enabled           bool
	Endpoint          string // websocket endpoint of the chat platform
	AppID             string
	AppSecret         string
	ForwardPort       int           // local port events are forwarded to
	HeartbeatInterval time.Duration // liveness check period
	ReconnectDelay    time.Duration // delay before the first reconnect attempt
	RetryDelay        time.Duration // delay between subsequent failed attempts
	SendTimeout       time.Duration // bound on outbound publishes
	QueueSize         int           // inbound dispatch queue capacity
}

// SyncConfig controls the reconciliation worker.
type SyncConfig struct {
	Interval   time.Duration
	MirrorBack bool // backfill index-only opt-outs into the ledger
}

// OrderConfig controls the daily order state machine and its schedule.
type OrderConfig struct {
	DefaultHeadcount int    // TotalPeople for freshly created aggregates
	OpenAt           string // "HH:MM", empty disables the scheduled opener
	CloseAt          string // "HH:MM", empty disables the scheduled closer
	Timezone         string // IANA name, default UTC
}

type TracingConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string // "grpc" or "http"
	SamplingRatio    float64
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from the environment.
func Load() Config {
	return Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getInt("HTTP_PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			DSN:    getEnv("DB_DSN", "order-robot.db"),
		},
		Channel: ChannelConfig{
			Enabled:           getBool("CHANNEL_ENABLED", false),
			Endpoint:          getEnv("CHANNEL_ENDPOINT", ""),
			AppID:             getEnv("CHANNEL_APP_ID", ""),
			AppSecret:         getEnv("CHANNEL_APP_SECRET", ""),
			ForwardPort:       getInt("CHANNEL_FORWARD_PORT", 8080),
			HeartbeatInterval: getDuration("CHANNEL_HEARTBEAT_INTERVAL", 30*time.Second),
			ReconnectDelay:    getDuration("CHANNEL_RECONNECT_DELAY", 2*time.Second),
			RetryDelay:        getDuration("CHANNEL_RETRY_DELAY", 5*time.Second),
			SendTimeout:       getDuration("CHANNEL_SEND_TIMEOUT", 10*time.Second),
			QueueSize:         getInt("CHANNEL_QUEUE_SIZE", 256),
		},
		Sync: SyncConfig{
			Interval:   getDuration("SYNC_INTERVAL", 5*time.Minute),
			MirrorBack: getBool("SYNC_MIRROR_BACK", false),
		},
		Orders: OrderConfig{
			DefaultHeadcount: getInt("ORDER_DEFAULT_HEADCOUNT", 0),
			OpenAt:           getEnv("ORDER_OPEN_AT", ""),
			CloseAt:          getEnv("ORDER_CLOSE_AT", ""),
			Timezone:         getEnv("ORDER_TIMEZONE", "UTC"),
		},
		Tracing: TracingConfig{
			Enabled:          getBool("TRACING_ENABLED", false),
			ExporterEndpoint: getEnv("TRACING_EXPORTER_ENDPOINT", ""),
			ExporterProtocol: getEnv("TRACING_EXPORTER_PROTOCOL", "grpc"),
			SamplingRatio:    getFloat("TRACING_SAMPLING_RATIO", 1.0),
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
