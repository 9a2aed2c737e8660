package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Engine
	CatalogPath         string // empty: embedded catalog
	IdleTimeout         time.Duration
	SweepInterval       time.Duration
	HistorySize         int
	SimilarityThreshold float64
	DispatchWorkers     int
	DispatchQueueSize   int

	// Embeddings: none | ollama | genai
	EmbeddingProvider  string
	OllamaURL          string
	OllamaModel        string
	GenAIAPIKey        string
	GenAIEmbedModel    string
	GenAITextModel     string
	EmbeddingCache     string // file | sqlite
	EmbeddingCachePath string
	EmbedTimeout       time.Duration
	QueryCacheTTL      time.Duration

	// Text generator for stylistic replies: none | agent | genai
	LLMProvider     string
	ChatAgentURL    string
	LLMTimeout      time.Duration
	LLMMaxInFlight  int
	EnableGenerator bool

	// State persistence: memory | redis
	StateStore    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Deal persistence: memory | supabase | dynamodb
	DealStore          string
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	DealsTable         string
	DynamoDBEndpoint   string
	AWSRegion          string

	// Transport
	OutboundWebhookURL string
	WebhookJWTSecret   string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	cfg := &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CatalogPath:         getEnv("CATALOG_PATH", ""),
		IdleTimeout:         getEnvDuration("IDLE_TIMEOUT", 30*time.Minute),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", time.Minute),
		HistorySize:         getEnvInt("HISTORY_SIZE", 10),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.45),
		DispatchWorkers:     getEnvInt("DISPATCH_WORKERS", 8),
		DispatchQueueSize:   getEnvInt("DISPATCH_QUEUE_SIZE", 256),

		EmbeddingProvider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", "none")),
		OllamaURL:          getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        getEnv("OLLAMA_MODEL", "nomic-embed-text"),
		GenAIAPIKey:        getEnv("GENAI_API_KEY", ""),
		GenAIEmbedModel:    getEnv("GENAI_EMBED_MODEL", "gemini-embedding-001"),
		GenAITextModel:     getEnv("GENAI_TEXT_MODEL", "gemini-2.0-flash"),
		EmbeddingCache:     strings.ToLower(getEnv("EMBEDDING_CACHE", "file")),
		EmbeddingCachePath: getEnv("EMBEDDING_CACHE_PATH", "data/pattern_vectors.json"),
		EmbedTimeout:       getEnvDuration("EMBED_TIMEOUT", 800*time.Millisecond),
		QueryCacheTTL:      getEnvDuration("QUERY_CACHE_TTL", 10*time.Minute),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "none")),
		ChatAgentURL:   getEnv("CHAT_AGENT_URL", "http://localhost:8090"),
		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 5*time.Second),
		LLMMaxInFlight: getEnvInt("LLM_MAX_IN_FLIGHT", 8),

		StateStore:    strings.ToLower(getEnv("STATE_STORE", "memory")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DealStore:          strings.ToLower(getEnv("DEAL_STORE", "memory")),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		DealsTable:         getEnv("DEALS_TABLE", "deals"),
		DynamoDBEndpoint:   getEnv("DYNAMODB_ENDPOINT", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),

		OutboundWebhookURL: getEnv("OUTBOUND_WEBHOOK_URL", ""),
		WebhookJWTSecret:   getEnv("WEBHOOK_JWT_SECRET", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	cfg.EnableGenerator = getEnvBool("ENABLE_GENERATOR", cfg.LLMProvider != "none")
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
