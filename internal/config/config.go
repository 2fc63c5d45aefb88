// Package config loads localgenius settings from the environment.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Provider names for LLM and embedding backends.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Storage backends for job records.
const (
	StorageFile      = "file"
	StorageSQLite    = "sqlite"
	StorageSurrealDB = "surrealdb"
	StorageMemory    = "memory"
)

// Memory backends.
const (
	MemoryNone      = "none"
	MemoryMarkdown  = "markdown"
	MemorySurrealDB = "surrealdb"
)

// Config holds all configuration values.
type Config struct {
	// Workspace
	WorkspaceDir string

	// Job storage
	Storage    string
	JobsDir    string
	SQLitePath string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int

	// Memory
	MemoryBackend     string
	MemoryLogFile     string
	MemorySearchLimit int

	// Execution
	Interpreter string
	// ExecTimeout bounds one run of generated code; StepTimeout bounds a
	// whole step including code generation.
	ExecTimeout time.Duration
	StepTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	workspace := getEnv("LOCALGENIUS_WORKSPACE", "workspace")

	return Config{
		WorkspaceDir: workspace,

		Storage:    getEnv("LOCALGENIUS_STORAGE", StorageFile),
		JobsDir:    getEnv("LOCALGENIUS_JOBS_DIR", filepath.Join(workspace, "jobs")),
		SQLitePath: getEnv("LOCALGENIUS_SQLITE_PATH", filepath.Join(workspace, "jobs.db")),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "localgenius"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "agent"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     getEnv("LOCALGENIUS_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("LOCALGENIUS_LLM_MODEL", "llama3:8b"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		EmbedProvider:  getEnv("LOCALGENIUS_EMBED_PROVIDER", ProviderOllama),
		EmbedModel:     getEnv("LOCALGENIUS_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("LOCALGENIUS_EMBED_DIMENSION", 384),

		MemoryBackend:     getEnv("LOCALGENIUS_MEMORY", MemoryMarkdown),
		MemoryLogFile:     getEnv("LOCALGENIUS_MEMORY_LOG", filepath.Join(workspace, "memory_log.md")),
		MemorySearchLimit: getEnvInt("LOCALGENIUS_MEMORY_LIMIT", 3),

		Interpreter: getEnv("LOCALGENIUS_INTERPRETER", "python3"),
		ExecTimeout: getEnvDuration("LOCALGENIUS_EXEC_TIMEOUT", 30*time.Second),
		StepTimeout: getEnvDuration("LOCALGENIUS_STEP_TIMEOUT", 5*time.Minute),

		LogFile:  getEnv("LOCALGENIUS_LOG_FILE", "/tmp/localgenius.log"),
		LogLevel: parseLogLevel(getEnv("LOCALGENIUS_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		return time.Duration(n) * time.Second
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
