package config

import (
	"errors"
	"fmt"
	"os"
)

// Sentinel errors for configuration validation.
// Check with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimensions indicates the embedding dimension is out
	// of range.
	ErrInvalidEmbedderDimensions = errors.New("invalid embedder dimensions")

	// ErrInvalidTopK indicates the passage count is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidTurnTimeout indicates the per-turn timeout is out of range.
	ErrInvalidTurnTimeout = errors.New("invalid turn timeout")

	// ErrInvalidVectorStore indicates an unknown vector store backend.
	ErrInvalidVectorStore = errors.New("invalid vector store")

	// ErrMissingQdrantURL indicates the qdrant backend was selected without a URL.
	ErrMissingQdrantURL = errors.New("missing qdrant url")

	// ErrInvalidSessionBackend indicates an unknown session store backend.
	ErrInvalidSessionBackend = errors.New("invalid session backend")

	// ErrMissingRedisAddr indicates the redis backend was selected without an address.
	ErrMissingRedisAddr = errors.New("missing redis addr")

	// ErrPartialImageCredentials indicates only one of the two Google Custom
	// Search credentials is set. Both or neither.
	ErrPartialImageCredentials = errors.New("partial image search credentials")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is unknown.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// TopK bounds. Retrieval quality degrades past a few dozen passages and the
// prompt budget is finite.
const (
	MinTopK = 1
	MaxTopK = 50
)

// Turn timeout bounds in seconds.
const (
	MinTurnTimeoutSecs = 1
	MaxTurnTimeoutSecs = 600
)

// Validate checks the whole configuration and fails fast on the first problem.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateAI(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSessions(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateAI() error {
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY not set", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingAPIKey)
		}
	case ProviderOllama:
		// Local provider, no key required.
	default:
		return fmt.Errorf("%w: %q (expected gemini, ollama, or openai)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimensions < 1 {
		return fmt.Errorf("%w: %d (expected a positive vector size)",
			ErrInvalidEmbedderDimensions, c.EmbedderDimensions)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	if c.TopK < MinTopK || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d (expected %d-%d)", ErrInvalidTopK, c.TopK, MinTopK, MaxTopK)
	}

	switch c.VectorStore {
	case VectorStorePgvector:
	case VectorStoreQdrant:
		if c.Qdrant.URL == "" {
			return fmt.Errorf("%w: vector_store is qdrant", ErrMissingQdrantURL)
		}
	default:
		return fmt.Errorf("%w: %q (expected pgvector or qdrant)", ErrInvalidVectorStore, c.VectorStore)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name is empty", ErrInvalidPostgresDBName)
	}

	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
}

func (c *Config) validateSessions() error {
	switch c.SessionBackend {
	case SessionBackendMemory:
		return nil
	case SessionBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: session_backend is redis", ErrMissingRedisAddr)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q (expected memory or redis)", ErrInvalidSessionBackend, c.SessionBackend)
	}
}

func (c *Config) validateImage() error {
	// Image search is optional, but half-configured credentials are a
	// deployment mistake worth failing on.
	if (c.GoogleCSEKey == "") != (c.GoogleCSEID == "") {
		return fmt.Errorf("%w: set both GOOGLE_CSE_KEY and GOOGLE_CSE_ID or neither", ErrPartialImageCredentials)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.TurnTimeoutSecs < MinTurnTimeoutSecs || c.TurnTimeoutSecs > MaxTurnTimeoutSecs {
		return fmt.Errorf("%w: %d (expected %d-%d seconds)",
			ErrInvalidTurnTimeout, c.TurnTimeoutSecs, MinTurnTimeoutSecs, MaxTurnTimeoutSecs)
	}
	return nil
}
