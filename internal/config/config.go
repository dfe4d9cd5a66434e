// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.iris/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, answer/condense model selection, embedder
//   - Retrieval: vector store backend, top-K passage count
//   - Storage: PostgreSQL connection (see storage.go), Qdrant, Redis
//   - Image: Google Custom Search credentials for the image annotator
//   - Server: listen address, per-turn timeout
//
// Security: sensitive values (passwords, API keys) are masked in MarshalJSON
// and String. Validation lives in validation.go with sentinel errors so
// callers can use errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Vector store backend identifiers used in Config.VectorStore.
const (
	VectorStorePgvector = "pgvector"
	VectorStoreQdrant   = "qdrant"
)

// Session store backend identifiers used in Config.SessionBackend.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

const (
	// DefaultTopK is the number of passages retrieved per question.
	DefaultTopK = 10

	// DefaultTurnTimeoutSecs bounds a whole turn: condense, retrieve, generate.
	DefaultTurnTimeoutSecs = 60

	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation via OutputDimensionality (Matryoshka Representation
	// Learning). Index-time and query-time embeddings must come from the
	// same model at the same dimension; corpus.Store.VerifyEmbedder enforces
	// this at startup.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimensions matches the vector(768) column in the
	// passages migration. Changing it requires a new migration and a
	// re-indexed corpus.
	DefaultEmbedderDimensions = 768
)

// QdrantConfig holds connection details for the optional Qdrant backend.
type QdrantConfig struct {
	URL        string `mapstructure:"url" json:"url"`
	APIKey     string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Collection string `mapstructure:"collection" json:"collection"`
}

// RedisConfig holds connection details for the optional Redis session store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"password"` // SENSITIVE: masked in MarshalJSON
	DB       int    `mapstructure:"db" json:"db"`
	TTLHours int    `mapstructure:"ttl_hours" json:"ttl_hours"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys), update MarshalJSON.
type Config struct {
	// AI provider and model configuration.
	// Answer generation runs at temperature 0 by policy (see chain package);
	// there is deliberately no temperature knob here.
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	CondenseModel string `mapstructure:"condense_model" json:"condense_model"` // optional lighter model for query rewriting
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// EmbedderDimensions is the embedding vector size requested from the
	// embedder and expected by the vector index. Must match the corpus
	// schema (vector(768) by default).
	EmbedderDimensions int `mapstructure:"embedder_dimensions" json:"embedder_dimensions"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Retrieval configuration
	VectorStore string       `mapstructure:"vector_store" json:"vector_store"`
	TopK        int          `mapstructure:"top_k" json:"top_k"`
	Qdrant      QdrantConfig `mapstructure:"qdrant" json:"qdrant"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Session store configuration
	SessionBackend string      `mapstructure:"session_backend" json:"session_backend"`
	Redis          RedisConfig `mapstructure:"redis" json:"redis"`

	// Image annotator configuration (Google Custom Search).
	// Credentials come from the environment, never from code; when unset the
	// image endpoints are not registered.
	GoogleCSEKey string `mapstructure:"google_cse_key" json:"google_cse_key"` // SENSITIVE: masked in MarshalJSON
	GoogleCSEID  string `mapstructure:"google_cse_id" json:"google_cse_id"`

	// Server configuration
	Addr            string `mapstructure:"addr" json:"addr"`
	TurnTimeoutSecs int    `mapstructure:"turn_timeout_secs" json:"turn_timeout_secs"`

	// Observability: optional OTLP trace endpoint (e.g. "localhost:4318").
	// Tracing is disabled when empty.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".iris")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides individual postgres_* settings
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail-fast validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("condense_model", "") // empty = reuse model_name
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("embedder_dimensions", DefaultEmbedderDimensions)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Retrieval defaults
	viper.SetDefault("vector_store", VectorStorePgvector)
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("qdrant.collection", "passages")

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "iris")
	viper.SetDefault("postgres_password", "iris_dev_password")
	viper.SetDefault("postgres_db_name", "iris")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Session defaults
	viper.SetDefault("session_backend", SessionBackendMemory)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.ttl_hours", 24)

	// Server defaults
	viper.SetDefault("addr", "127.0.0.1:3500")
	viper.SetDefault("turn_timeout_secs", DefaultTurnTimeoutSecs)
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Provider API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit plugins, not via Viper; Validate() only checks their presence.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Google Custom Search credentials for the image annotator
	mustBind("google_cse_key", "GOOGLE_CSE_KEY")
	mustBind("google_cse_id", "GOOGLE_CSE_ID")

	// Qdrant and Redis secrets
	mustBind("qdrant.api_key", "QDRANT_API_KEY")
	mustBind("redis.password", "REDIS_PASSWORD")

	// Runtime overrides
	mustBind("provider", "IRIS_PROVIDER")
	mustBind("model_name", "IRIS_MODEL_NAME")
	mustBind("addr", "IRIS_ADDR")
	mustBind("otlp_endpoint", "IRIS_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked to prevent substring matching;
// longer secrets keep the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - GoogleCSEKey
//   - Qdrant.APIKey
//   - Redis.Password
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.GoogleCSEKey = maskSecret(a.GoogleCSEKey)
	a.Qdrant.APIKey = maskSecret(a.Qdrant.APIKey)
	a.Redis.Password = maskSecret(a.Redis.Password)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified name for the answer model.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
func (c *Config) FullModelName() string {
	return c.qualify(c.ModelName)
}

// FullCondenseModelName returns the provider-qualified name for the model used
// to rewrite follow-up questions. Falls back to the answer model when unset.
func (c *Config) FullCondenseModelName() string {
	if c.CondenseModel == "" {
		return c.FullModelName()
	}
	return c.qualify(c.CondenseModel)
}

func (c *Config) qualify(model string) string {
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + model
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + model
	default:
		return "googleai/" + model
	}
}

// ImageSearchConfigured reports whether the image annotator has credentials.
func (c *Config) ImageSearchConfigured() bool {
	return c.GoogleCSEKey != "" && c.GoogleCSEID != ""
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
