// Package app provides application initialization and dependency wiring.
//
// Setup builds the whole service object graph from configuration: Genkit
// with the configured AI provider, the corpus backend (pgvector or qdrant),
// the session store (memory or redis), the answer chain, and the optional
// image components. App owns the resources and releases them in Close.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iris0/iris/internal/chain"
	"github.com/iris0/iris/internal/config"
	"github.com/iris0/iris/internal/image"
	"github.com/iris0/iris/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	// DBPool is nil when the qdrant corpus backend is configured.
	DBPool *pgxpool.Pool

	// Retriever is whichever corpus backend was configured.
	Retriever chain.Retriever

	Chain    *chain.Chain
	Sessions session.Store

	// Image components are nil unless search credentials were configured.
	Searcher  *image.GoogleClient
	Extractor *image.TermExtractor

	otelCleanup func()
	corpusClose func() error
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	var firstErr error

	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			a.Logger.Warn("closing session store", "error", err)
			firstErr = err
		}
	}

	if a.corpusClose != nil {
		if err := a.corpusClose(); err != nil {
			a.Logger.Warn("closing corpus backend", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return firstErr
}
