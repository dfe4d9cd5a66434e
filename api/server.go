// Package api provides the HTTP REST API for the QA service.
//
// Endpoints:
//   - GET  /health                — liveness probe
//   - GET  /ready                 — readiness probe (pings PostgreSQL when used)
//   - POST /api/chat              — one question-answering turn
//   - POST /api/sessions          — create a server-held conversation
//   - GET  /api/sessions/{id}     — read a conversation and its history
//   - DELETE /api/sessions/{id}   — end a conversation
//   - GET  /api/fetch_image       — one illustrative image for a query
//   - POST /api/get_search_terms  — derive image search terms from answer text
//
// The image routes are only registered when search credentials were
// configured.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - ratelimit.go: per-IP token bucket rate limiting
//   - health.go: health check endpoints (/health, /ready)
//   - chat.go: question-answering endpoint
//   - session.go: session management endpoints
//   - image.go: image lookup and term extraction endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iris0/iris/internal/session"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. Turns
	// wait on model calls, so this sits above the turn timeout.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second

	// DefaultRateBurst is the per-IP token bucket size.
	DefaultRateBurst = 60
)

// ServerConfig contains the collaborators and knobs for the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	Asker        Asker         // Required: the answer chain
	SessionStore session.Store // Required
	Searcher     Searcher      // Optional: nil disables image routes
	Extractor    Extractor     // Optional: nil disables the terms route
	Pool         *pgxpool.Pool // Optional: nil skips the database readiness check
	RateBurst    int           // Per-IP burst size (0 = DefaultRateBurst)
}

// Server is the HTTP server for the QA REST API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	burst  int
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Asker == nil {
		return nil, errors.New("asker is required")
	}
	if cfg.SessionStore == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	NewHealthHandler(cfg.Pool, logger).RegisterRoutes(mux)
	NewChatHandler(cfg.Asker, cfg.SessionStore, logger).RegisterRoutes(mux)
	NewSessionHandler(cfg.SessionStore, logger).RegisterRoutes(mux)

	if cfg.Searcher != nil {
		NewImageHandler(cfg.Searcher, cfg.Extractor, logger).RegisterRoutes(mux)
	} else {
		logger.Warn("image search not configured, image routes not registered")
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = DefaultRateBurst
	}

	return &Server{mux: mux, logger: logger, burst: burst}, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	rl := newRateLimiter(1.0, s.burst)
	return chainMiddleware(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		rateLimitMiddleware(rl, s.logger),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
