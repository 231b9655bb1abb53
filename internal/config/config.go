package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Session    SessionConfig
	Search     SearchConfig
	Logging    LoggingConfig
	LLM        LLMConfig
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Locations  LocationsConfig
	WebSocket  WebSocketConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, takes precedence over the discrete fields
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

// SessionConfig controls where per-user conversation state lives and how
// long collaborator calls may hold a user's lock.
type SessionConfig struct {
	Backend       string // memory or redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	TTL           time.Duration
	HistoryLimit  int
	PromptWindow  int
	CallTimeout   time.Duration
}

// SearchConfig holds retrieval limits
type SearchConfig struct {
	ResultLimit int
	VectorTopK  int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LLMConfig selects the generative-text provider
type LLMConfig struct {
	Provider string // openai, nvidia or anthropic
}

// OpenAIConfig holds OpenAI-compatible API configuration. The same settings
// serve NVIDIA-hosted models through APIBase.
type OpenAIConfig struct {
	APIKey              string
	APIBase             string
	ChatModel           string
	ChatTemperature     float64
	ChatTopP            float64
	ChatMaxTokens       int
	ChatExtraBody       string // JSON object merged into chat requests, e.g. {"chat_template_kwargs":{"thinking":false}}
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingExtraBody  string // JSON object merged into embedding requests, e.g. {"truncate":"NONE"}
	BatchSize           int
	Timeout             int
	Enabled             bool
}

// AnthropicConfig holds Anthropic Messages API configuration
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Enabled     bool
}

// LocationsConfig points at an optional alias table overriding the built-in one
type LocationsConfig struct {
	File string
}

// WebSocketConfig bounds the conversation socket
type WebSocketConfig struct {
	ReadLimit       int64
	MessagesPerSec  float64
	MessageBurst    int
	WriteTimeout    time.Duration
	PongWait        time.Duration // idle read timeout, extended by every message and pong
	PingInterval    time.Duration // must be shorter than PongWait
	AllowAllOrigins bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("POSTGRESQL_URI", getEnv("PG_DSN", ""))),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "estate_assistant"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Session: SessionConfig{
			Backend:       getEnv("SESSION_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			RedisPrefix:   getEnv("REDIS_PREFIX", "estate:"),
			TTL:           getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			HistoryLimit:  getEnvAsInt("SESSION_HISTORY_LIMIT", 100),
			PromptWindow:  getEnvAsInt("SESSION_PROMPT_WINDOW", 5),
			CallTimeout:   getEnvAsDuration("COLLABORATOR_TIMEOUT", 15*time.Second),
		},
		Search: SearchConfig{
			ResultLimit: getEnvAsInt("SEARCH_RESULT_LIMIT", 6),
			VectorTopK:  getEnvAsInt("SEARCH_VECTOR_TOP_K", 6),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "openai"),
		},
		OpenAI: OpenAIConfig{
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			APIBase:             getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:           getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature:     getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.4),
			ChatTopP:            getEnvAsFloat("OPENAI_CHAT_TOP_P", 0.9),
			ChatMaxTokens:       getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 512),
			ChatExtraBody:       getEnv("OPENAI_CHAT_EXTRA_BODY", ""),
			EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
			EmbeddingExtraBody:  getEnv("OPENAI_EMBEDDING_EXTRA_BODY", ""),
			BatchSize:           getEnvAsInt("OPENAI_BATCH_SIZE", 100),
			Timeout:             getEnvAsInt("OPENAI_TIMEOUT", 30),
			Enabled:             getEnv("OPENAI_API_KEY", "") != "",
		},
		Anthropic: AnthropicConfig{
			APIKey:      getEnv("ANTHROPIC_API_KEY", ""),
			Model:       getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			MaxTokens:   getEnvAsInt("ANTHROPIC_MAX_TOKENS", 512),
			Temperature: getEnvAsFloat("ANTHROPIC_TEMPERATURE", 0.4),
			Enabled:     getEnv("ANTHROPIC_API_KEY", "") != "",
		},
		Locations: LocationsConfig{
			File: getEnv("LOCATIONS_FILE", ""),
		},
		WebSocket: WebSocketConfig{
			ReadLimit:       int64(getEnvAsInt("WS_READ_LIMIT", 64*1024)),
			MessagesPerSec:  getEnvAsFloat("WS_MESSAGES_PER_SEC", 2),
			MessageBurst:    getEnvAsInt("WS_MESSAGE_BURST", 5),
			WriteTimeout:    getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PongWait:        getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
			PingInterval:    getEnvAsDuration("WS_PING_INTERVAL", 50*time.Second),
			AllowAllOrigins: getEnv("WS_ALLOW_ALL_ORIGINS", "true") == "true",
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid SESSION_BACKEND %q: expected memory or redis", c.Session.Backend)
	}
	switch c.LLM.Provider {
	case "openai", "nvidia", "anthropic":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q: expected openai, nvidia or anthropic", c.LLM.Provider)
	}
	if c.Search.ResultLimit <= 0 || c.Search.VectorTopK <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if c.Session.CallTimeout <= 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must be positive")
	}
	if c.WebSocket.PongWait > 0 && c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}
