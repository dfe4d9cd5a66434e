package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default pipeline parameters.
const (
	// DefaultTopK is the number of passages retrieved per turn.
	DefaultTopK = 10

	// DefaultTurnTimeout bounds a whole turn across all three stages.
	DefaultTurnTimeout = 60 * time.Second
)

// Config holds the pipeline parameters fixed at startup.
type Config struct {
	// TopK is the number of passages to retrieve. Defaults to DefaultTopK.
	TopK int

	// TurnTimeout bounds one whole turn. A stage that outlives it fails the
	// turn. Defaults to DefaultTurnTimeout.
	TurnTimeout time.Duration
}

// Chain sequences Condenser, Retriever and Generator into one turn. It is
// created once at startup and is read-only afterwards; concurrent turns from
// independent sessions share it safely.
type Chain struct {
	condenser   Condenser
	retriever   Retriever
	generator   Generator
	topK        int
	turnTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Chain. Zero-valued Config fields take their defaults.
func New(condenser Condenser, retriever Retriever, generator Generator, cfg Config, logger *slog.Logger) *Chain {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		condenser:   condenser,
		retriever:   retriever,
		generator:   generator,
		topK:        cfg.TopK,
		turnTimeout: cfg.TurnTimeout,
		logger:      logger,
	}
}

// Ask runs one turn: condense the follow-up against history, retrieve
// passages for the standalone question, generate a grounded answer.
//
// Ask never mutates history; recording the turn is the caller's decision,
// taken only after Ask returns without error. There are no internal retries:
// a failed stage fails the turn and the error is returned as-is for the
// caller to retry if it wants.
func (c *Chain) Ask(ctx context.Context, question string, history []Turn) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, ErrEmptyQuestion
	}

	ctx, cancel := context.WithTimeout(ctx, c.turnTimeout)
	defer cancel()

	start := time.Now()
	state := StateCondensing

	standalone, err := c.condenser.Condense(ctx, history, question)
	if err != nil {
		// A worse query, not a failed turn: fall back to the raw follow-up.
		c.logger.Warn("condense failed, using follow-up as-is", "error", err)
		standalone = question
	}
	if strings.TrimSpace(standalone) == "" {
		standalone = question
	}

	state = StateRetrieving
	if err := ctx.Err(); err != nil {
		return Result{}, c.fail(state, start, err)
	}

	passages, err := c.retriever.Retrieve(ctx, standalone, c.topK)
	if err != nil {
		return Result{}, c.fail(state, start, fmt.Errorf("%w: %w", ErrRetrieval, err))
	}

	state = StateGenerating
	if err := ctx.Err(); err != nil {
		return Result{}, c.fail(state, start, err)
	}

	answer, err := c.generator.Generate(ctx, standalone, passages)
	if err != nil {
		return Result{}, c.fail(state, start, fmt.Errorf("%w: %w", ErrGeneration, err))
	}

	c.logger.Info("turn complete",
		"state", StateComplete.String(),
		"sources", len(passages),
		"duration", time.Since(start),
	)
	return Result{
		Answer:     answer,
		Standalone: standalone,
		Sources:    passages,
		Confidence: ParseConfidence(answer),
	}, nil
}

// TopK reports the configured passages-per-turn count.
func (c *Chain) TopK() int {
	return c.topK
}

func (c *Chain) fail(state State, start time.Time, err error) error {
	c.logger.Error("turn failed",
		"state", state.String(),
		"duration", time.Since(start),
		"error", err,
	)
	return err
}
