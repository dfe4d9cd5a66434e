package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/genai"

	"github.com/iris0/iris/db"
	"github.com/iris0/iris/internal/chain"
	"github.com/iris0/iris/internal/config"
	"github.com/iris0/iris/internal/corpus"
	corpusqdrant "github.com/iris0/iris/internal/corpus/qdrant"
	"github.com/iris0/iris/internal/image"
	"github.com/iris0/iris/internal/session"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	if err := provideCorpus(ctx, a); err != nil {
		return nil, err
	}

	a.Sessions, err = provideSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	llm := chain.NewLLM(g, cfg.FullModelName(), cfg.FullCondenseModelName(), logger)
	a.Chain = chain.New(llm, a.Retriever, llm, chain.Config{
		TopK:        cfg.TopK,
		TurnTimeout: time.Duration(cfg.TurnTimeoutSecs) * time.Second,
	}, logger)

	if cfg.ImageSearchConfigured() {
		searcher, err := image.NewGoogleClient(cfg.GoogleCSEKey, cfg.GoogleCSEID, logger)
		if err != nil {
			return nil, fmt.Errorf("creating image search client: %w", err)
		}
		a.Searcher = searcher
		a.Extractor = image.NewTermExtractor(g, cfg.FullCondenseModelName(), logger)
	}

	return a, nil
}

// provideOtelShutdown registers an OTLP trace exporter with Genkit's tracer
// provider. Tracing is optional; failures here disable it rather than
// failing startup.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating otlp exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("otlp tracing enabled", "endpoint", cfg.OTLPEndpoint)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		if cfg.CondenseModel != "" && cfg.CondenseModel != cfg.ModelName {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: cfg.CondenseModel,
				Type: "chat",
			}, nil)
		}
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideEmbedOptions returns the provider-specific embed request config
// pinning the output vector size. Gemini embedders emit 3072 dimensions by
// default and must be truncated to fit the vector column; ollama and openai
// embedders emit their model's native size, which the corpus fingerprint
// check holds against config.
func provideEmbedOptions(cfg *config.Config) any {
	switch cfg.Provider {
	case config.ProviderOllama, config.ProviderOpenAI:
		return nil
	default: // gemini
		dim := int32(cfg.EmbedderDimensions) // #nosec G115 -- validated positive, vector sizes are small
		return &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
}

// provideCorpus wires the configured corpus backend into a.Retriever and
// asserts the embedder consistency invariant before the first request.
func provideCorpus(ctx context.Context, a *App) error {
	cfg := a.Config
	embedOpts := provideEmbedOptions(cfg)

	switch cfg.VectorStore {
	case config.VectorStoreQdrant:
		store, err := corpusqdrant.New(corpusqdrant.Config{
			URL:        cfg.Qdrant.URL,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey,
		}, a.Embedder, embedOpts, a.Logger)
		if err != nil {
			return fmt.Errorf("creating qdrant corpus: %w", err)
		}
		a.Retriever = store
		a.corpusClose = store.Close

	default: // pgvector
		pool, err := provideDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		a.DBPool = pool

		store := corpus.New(corpus.NewQuerier(pool), a.Embedder, embedOpts, a.Logger)
		if err := store.VerifyEmbedder(ctx, cfg.EmbedderModel, cfg.EmbedderDimensions); err != nil {
			return err
		}
		a.Retriever = store
	}

	return nil
}

// provideDBPool creates a PostgreSQL connection pool with pgvector types
// registered, after running migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideSessionStore creates the configured session backend.
func provideSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
		return session.NewRedisStore(client, ttl), nil

	default: // memory
		return session.NewMemoryStore(), nil
	}
}
