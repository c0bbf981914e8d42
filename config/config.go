package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Logger  LoggerConfig
	Backend BackendConfig
	Stream  StreamConfig
	Kafka   KafkaConfig
	Redis   RedisConfig
	Sync    SyncConfig
}

type ServerConfig struct {
	AppEnv   string
	GRPCPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

// BackendConfig describes the commerce REST API the dashboard talks to.
type BackendConfig struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables pacing
	Burst     int
}

type StreamConfig struct {
	Transport         string // sse, websocket, kafka, redis
	SSEPath           string
	WebSocketURL      string
	IdleTimeout       time.Duration
	ReconnectInterval time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type SyncConfig struct {
	DefaultStock int
	PageSize     int
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			GRPCPort: getEnv("GRPC_PORT", ":8083"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Backend: BackendConfig{
			BaseURL:   getEnv("BACKEND_URL", "http://localhost:5000"),
			Token:     getEnv("BACKEND_TOKEN", ""),
			Timeout:   getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
			RateLimit: getEnvFloat("BACKEND_RATE_LIMIT", 20),
			Burst:     getEnvInt("BACKEND_BURST", 5),
		},
		Stream: StreamConfig{
			Transport:         strings.ToLower(getEnv("STREAM_TRANSPORT", "sse")),
			SSEPath:           getEnv("STREAM_SSE_PATH", "/api/products/sse/stock-updates"),
			WebSocketURL:      getEnv("STREAM_WS_URL", "ws://localhost:5000/api/products/ws/stock-updates"),
			IdleTimeout:       getEnvDuration("STREAM_IDLE_TIMEOUT", 90*time.Second),
			ReconnectInterval: getEnvDuration("STREAM_RECONNECT_INTERVAL", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC_STOCK", "products.stock-updates"),
			GroupID: getEnv("KAFKA_GROUP_ID", "inventory-sync"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_STOCK_CHANNEL", "products:stock-updates"),
		},
		Sync: SyncConfig{
			DefaultStock: getEnvInt("SYNC_DEFAULT_STOCK", 1),
			PageSize:     getEnvInt("SYNC_PAGE_SIZE", 10),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}
