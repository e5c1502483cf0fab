package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	OllamaURL      string
	ChatModel      string
	EmbeddingModel string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	StreamShowThinking bool
	PromptTokenBudget  int
	CompletionReserve  int

	RetrievalEnabled bool
	RetrievalTopK    int
	RetrievalTimeout time.Duration
	ModelTimeout     time.Duration

	CacheSize int
	CacheTTL  time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	PersistQueueSize int
	PersistWorkers   int
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "chat-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "chat_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "chat_password"),
		DBName:     getEnv("DB_NAME", "chat_db"),

		OllamaURL:      getEnv("OLLAMA_URL", "http://localhost:11434"),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-oss20b"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "embeddinggemma"),

		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:  getSecret("OPENAI_API_KEY", "OPENAI_API_KEY_FILE", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		StreamShowThinking: getEnvBool("STREAM_SHOW_THINKING", true),
		PromptTokenBudget:  getEnvInt("PROMPT_TOKEN_BUDGET", 4096),
		CompletionReserve:  getEnvInt("COMPLETION_RESERVE_TOKENS", 512),

		RetrievalEnabled: getEnvBool("RETRIEVAL_ENABLED", true),
		RetrievalTopK:    getEnvInt("RETRIEVAL_TOP_K", 3),
		RetrievalTimeout: getEnvDuration("RETRIEVAL_TIMEOUT", 5*time.Second),
		ModelTimeout:     getEnvDuration("MODEL_TIMEOUT", 120*time.Second),

		CacheSize: getEnvInt("CACHE_SIZE", 256),
		CacheTTL:  getEnvDuration("CACHE_TTL", 1*time.Hour),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		PersistQueueSize: getEnvInt("PERSIST_QUEUE_SIZE", 256),
		PersistWorkers:   getEnvInt("PERSIST_WORKERS", 2),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
