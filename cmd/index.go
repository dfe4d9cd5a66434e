package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/iris0/iris/internal/app"
	"github.com/iris0/iris/internal/config"
	"github.com/iris0/iris/internal/corpus"
)

// passageAdder is satisfied by both corpus backends.
type passageAdder interface {
	Add(ctx context.Context, p corpus.Passage) error
}

// runIndex bulk-loads passages into the configured corpus backend.
// Input is JSON Lines, one object per line:
//
//	{"id": "doc-1#3", "content": "...", "source_id": "doc-1"}
//
// A missing id is generated. The embedder configured for querying does the
// indexing, which keeps the embedder consistency invariant trivially true.
func runIndex(logger *slog.Logger) error {
	args := os.Args[2:]
	if len(args) != 1 {
		return errors.New("usage: iris index <passages.jsonl>")
	}

	passages, err := readPassages(args[0])
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		return fmt.Errorf("no passages found in %s", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	adder, ok := a.Retriever.(passageAdder)
	if !ok {
		return fmt.Errorf("corpus backend %T does not support indexing", a.Retriever)
	}

	for i, p := range passages {
		if err := adder.Add(ctx, p); err != nil {
			return fmt.Errorf("indexing passage %d (%s): %w", i+1, p.ID, err)
		}
		if (i+1)%100 == 0 {
			logger.Info("indexing progress", "done", i+1, "total", len(passages))
		}
	}

	logger.Info("indexing complete", "passages", len(passages))
	fmt.Printf("Indexed %d passages\n", len(passages))
	return nil
}

// readPassages parses a JSON Lines file into passages. Blank lines are
// skipped; malformed lines and empty content are errors, reported with
// their line number.
func readPassages(path string) ([]corpus.Passage, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path is the point
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var passages []corpus.Passage

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var entry struct {
			ID       string `json:"id"`
			Content  string `json:"content"`
			SourceID string `json:"source_id"`
		}
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if entry.Content == "" {
			return nil, fmt.Errorf("%s line %d: content is required", path, line)
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}

		passages = append(passages, corpus.Passage{
			ID:       entry.ID,
			Content:  entry.Content,
			SourceID: entry.SourceID,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return passages, nil
}
