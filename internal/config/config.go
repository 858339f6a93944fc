package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM provider identifiers.
const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
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

	// Inference
	LLMProvider      string
	LLMModel         string
	OllamaHost       string
	OpenAIAPIKey     string
	InferenceTimeout time.Duration

	// Search
	TavilyAPIKey  string
	SearchTimeout time.Duration

	// Tracing
	LangfuseHost      string
	LangfusePublicKey string
	LangfuseSecretKey string

	// Auth
	JWTSecret string

	// Orchestration
	HistoryWindow      int
	AgentMaxIterations int

	// Server
	ListenPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "parley"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:      getEnv("PARLEY_LLM_PROVIDER", ProviderOllama),
		LLMModel:         getEnv("PARLEY_LLM_MODEL", "llama3:latest"),
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		InferenceTimeout: getDuration("PARLEY_INFERENCE_TIMEOUT", 60*time.Second),

		TavilyAPIKey:  getEnv("TAVILY_API_KEY", ""),
		SearchTimeout: getDuration("PARLEY_SEARCH_TIMEOUT", 30*time.Second),

		LangfuseHost:      getEnv("LANGFUSE_HOST", ""),
		LangfusePublicKey: getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey: getEnv("LANGFUSE_SECRET_KEY", ""),

		JWTSecret: getEnv("PARLEY_JWT_SECRET", ""),

		HistoryWindow:      getInt("PARLEY_HISTORY_WINDOW", 10),
		AgentMaxIterations: getInt("PARLEY_AGENT_MAX_ITERATIONS", 5),

		ListenPort: getEnv("PARLEY_SERVER_PORT", "8686"),

		LogFile:  getEnv("PARLEY_LOG_FILE", "/tmp/parley.log"),
		LogLevel: parseLogLevel(getEnv("PARLEY_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
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
