// Package config provides configuration for chatd.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the chatd configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Storage
	DatabaseURL     string
	RedisURL        string
	SessionCacheTTL time.Duration
	ChatDir         string

	// Engine
	EngineMode    string
	EngineURL     string
	EngineAPIKey  string
	EngineTimeout time.Duration
	DefaultModel  string

	// Context window
	ContextBudgetBytes int
	MaxHistoryMessages int
	SystemPrompt       string

	// Admission policy
	MaxTokensLimit int
	AllowedModels  []string

	// WebSocket
	WSWriteTimeout   time.Duration
	WSMaxMessageSize int64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// take precedence over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: failed to load .env: %v", err)
	}

	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:        getEnv("DATABASE_URL", "file:chatd.db?cache=shared&mode=rwc"),
		RedisURL:           getEnv("REDIS_URL", ""),
		SessionCacheTTL:    time.Duration(getEnvInt("SESSION_CACHE_TTL_MS", 1800000)) * time.Millisecond,
		ChatDir:            getEnv("CHAT_DIR", "chats"),
		EngineMode:         getEnv("ENGINE_MODE", "http"),
		EngineURL:          getEnv("ENGINE_URL", "http://localhost:8000"),
		EngineAPIKey:       getEnv("ENGINE_API_KEY", ""),
		EngineTimeout:      time.Duration(getEnvInt("ENGINE_TIMEOUT_MS", 300000)) * time.Millisecond,
		DefaultModel:       getEnv("DEFAULT_MODEL", "default"),
		ContextBudgetBytes: getEnvInt("CONTEXT_BUDGET_BYTES", 16384),
		MaxHistoryMessages: getEnvInt("MAX_HISTORY_MESSAGES", 0),
		SystemPrompt:       getEnv("SYSTEM_PROMPT", ""),
		MaxTokensLimit:     getEnvInt("MAX_TOKENS_LIMIT", 4096),
		AllowedModels:      getEnvList("ALLOWED_MODELS"),
		WSWriteTimeout:     time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSMaxMessageSize:   int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 1<<20)),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	logLevel = strings.ToLower(cfg.LogLevel)
	return cfg
}

var logLevel = "info"

// SetLogLevel overrides the level used by Debugf.
func SetLogLevel(level string) {
	logLevel = strings.ToLower(level)
}

// Debugf logs only when LOG_LEVEL is debug.
func Debugf(format string, args ...any) {
	if logLevel == "debug" {
		log.Printf("DEBUG: "+format, args...)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
		log.Printf("WARN: ignoring non-integer %s=%q", key, val)
	}
	return defaultVal
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
