package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/iris0/iris/api"
	"github.com/iris0/iris/internal/app"
	"github.com/iris0/iris/internal/config"
)

// parseRateBurst reads IRIS_RATE_BURST from the environment.
// Returns 0 (use default) if unset or invalid.
func parseRateBurst() int {
	v := os.Getenv("IRIS_RATE_BURST")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// serveArgs returns the arguments after the serve subcommand, if any.
func serveArgs() []string {
	if len(os.Args) > 2 && os.Args[1] == "serve" {
		return os.Args[2:]
	}
	return nil
}

// runServe initializes the application and starts the HTTP API server,
// blocking until SIGINT/SIGTERM.
func runServe(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr(cfg.Addr, serveArgs())
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting iris", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	serverCfg := api.ServerConfig{
		Logger:       logger,
		Asker:        a.Chain,
		SessionStore: a.Sessions,
		Pool:         a.DBPool,
		RateBurst:    parseRateBurst(),
	}
	// Typed-nil guard: App holds concrete pointers, ServerConfig interfaces.
	if a.Searcher != nil {
		serverCfg.Searcher = a.Searcher
	}
	if a.Extractor != nil {
		serverCfg.Extractor = a.Extractor
	}

	srv, err := api.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return srv.Run(ctx, addr)
}
