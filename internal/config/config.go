// Package config loads pipeline configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM provider
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Snapshot compatibility tags. Jobs whose stored snapshot was produced
	// under different tags are rejected before processing.
	EmbeddingModel  string
	ChunkingVersion string

	// Pipeline limits
	DefaultTokenBudget int
	PlanningTimeout    time.Duration
	GenerationTimeout  time.Duration
	ValidationTimeout  time.Duration
	RepairTimeout      time.Duration
	RecoveryTimeout    time.Duration

	// Worker
	WorkerConcurrency int
	PollInterval      time.Duration

	// Event/polling server
	ServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "studygen"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "jobs"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     Provider(getEnv("STUDYGEN_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:        getEnv("STUDYGEN_LLM_MODEL", "llama3.1"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		EmbeddingModel:  getEnv("STUDYGEN_EMBEDDING_MODEL", "all-minilm:l6-v2"),
		ChunkingVersion: getEnv("STUDYGEN_CHUNKING_VERSION", "v2"),

		DefaultTokenBudget: getEnvInt("STUDYGEN_TOKEN_BUDGET", 12000),
		PlanningTimeout:    getEnvDuration("STUDYGEN_PLANNING_TIMEOUT", 45*time.Second),
		GenerationTimeout:  getEnvDuration("STUDYGEN_GENERATION_TIMEOUT", 90*time.Second),
		ValidationTimeout:  getEnvDuration("STUDYGEN_VALIDATION_TIMEOUT", 45*time.Second),
		RepairTimeout:      getEnvDuration("STUDYGEN_REPAIR_TIMEOUT", 60*time.Second),
		RecoveryTimeout:    getEnvDuration("STUDYGEN_RECOVERY_TIMEOUT", 10*time.Minute),

		WorkerConcurrency: getEnvInt("STUDYGEN_WORKER_CONCURRENCY", 1),
		PollInterval:      getEnvDuration("STUDYGEN_POLL_INTERVAL", 500*time.Millisecond),

		ServerAddr: getEnv("STUDYGEN_SERVER_ADDR", ":8585"),

		LogFile:  getEnv("STUDYGEN_LOG_FILE", "/tmp/studygen.log"),
		LogLevel: parseLogLevel(getEnv("STUDYGEN_LOG_LEVEL", "INFO")),
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
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
