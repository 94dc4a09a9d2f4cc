package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Query    QueryConfig
	LLM      LLMConfig
	Stream   StreamConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Ingest   IngestConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	CORSAllowOrigin string
}

type DatabaseConfig struct {
	Driver string
	URL    string
}

type QueryConfig struct {
	MaxRows           int
	MaxQuestionLength int
}

// LLM modes
const (
	LLMModeOff    = "off"
	LLMModeAssist = "assist"
)

type LLMConfig struct {
	Mode           string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

type StreamConfig struct {
	CharDelayMillis int
}

type RedisConfig struct {
	Enabled         bool
	Addr            string
	Password        string
	DB              int
	CacheTTLSeconds int
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicQuery    string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	TracingEnabled bool
	JaegerEndpoint string
}

type IngestConfig struct {
	DataDir string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "5000"),
			Env:             getEnv("ENV", "development"),
			CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite3"),
			URL:    getEnv("DATABASE_URL", "ecommerce.db"),
		},
		Query: QueryConfig{
			MaxRows:           getEnvInt("QUERY_MAX_ROWS", 1000),
			MaxQuestionLength: getEnvInt("QUESTION_MAX_LENGTH", 500),
		},
		LLM: LLMConfig{
			Mode:           strings.ToLower(getEnv("LLM_MODE", LLMModeOff)),
			BaseURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			Model:          getEnv("OLLAMA_MODEL", "llama2"),
			TimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 8),
		},
		Stream: StreamConfig{
			CharDelayMillis: getEnvInt("STREAM_CHAR_DELAY_MS", 20),
		},
		Redis: RedisConfig{
			Enabled:         getEnvBool("REDIS_ENABLED", false),
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvInt("REDIS_DB", 0),
			CacheTTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 3600),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvBool("KAFKA_ENABLED", false),
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicQuery:    getEnv("QUERY_EVENTS_TOPIC", "query-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "query-audit-group"),
		},
		Observ: ObservabilityConfig{
			TracingEnabled: getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Ingest: IngestConfig{
			DataDir: getEnv("DATA_DIR", "data"),
		},
	}

	if cfg.LLM.Mode != LLMModeAssist {
		cfg.LLM.Mode = LLMModeOff
	}

	log.Printf("Config loaded: env=%s, port=%s, driver=%s, llm=%s",
		cfg.Server.Env, cfg.Server.Port, cfg.Database.Driver, cfg.LLM.Mode)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return b
}
