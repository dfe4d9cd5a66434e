// Package corpus manages the indexed reference corpus and its vector search.
//
// The corpus is populated once (Store.Add) and then queried per turn
// (Store.Retrieve). Search runs in PostgreSQL with pgvector; queries are
// embedded with the same model that indexed the corpus, enforced by
// VerifyEmbedder at startup.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// ErrEmbedderMismatch indicates the configured embedder model differs from the
// one that indexed the corpus. Retrieval would silently degrade, so this is a
// startup failure, not a warning.
var ErrEmbedderMismatch = errors.New("embedder model mismatch")

// searchTimeout bounds a single vector search so a slow index cannot stall a
// turn beyond its own budget.
const searchTimeout = 10 * time.Second

// Store manages corpus passages with vector search.
// It handles embedding generation and similarity search over PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries   Querier
	embedder  ai.Embedder
	embedOpts any
	logger    *slog.Logger
}

// New creates a new Store. embedOpts is the provider-specific embed request
// config (e.g. *genai.EmbedContentConfig pinning OutputDimensionality for
// Gemini, whose native 3072 dimensions would not fit the vector column);
// nil means the embedder's default output.
//
// Example (testing with fakes):
//
//	store := corpus.New(fakeQuerier, fakeEmbedder, nil, log.NewNop())
func New(querier Querier, embedder ai.Embedder, embedOpts any, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:   querier,
		embedder:  embedder,
		embedOpts: embedOpts,
		logger:    logger,
	}
}

// VerifyEmbedder asserts the index-time/query-time embedding consistency
// invariant. The first call against an unclaimed corpus records the model
// and vector size as its fingerprint; later calls fail with
// ErrEmbedderMismatch when the configuration differs from the record.
func (s *Store) VerifyEmbedder(ctx context.Context, model string, dims int) error {
	if err := s.verifyMeta(ctx, MetaKeyEmbedderModel, model); err != nil {
		return err
	}
	return s.verifyMeta(ctx, MetaKeyEmbedderDimensions, strconv.Itoa(dims))
}

// verifyMeta claims key with want on a fresh corpus, or compares against the
// recorded value.
func (s *Store) verifyMeta(ctx context.Context, key, want string) error {
	recorded, err := s.queries.GetMeta(ctx, key)
	if errors.Is(err, ErrMetaNotFound) {
		if err := s.queries.SetMeta(ctx, key, want); err != nil {
			return fmt.Errorf("claiming embedder fingerprint %s: %w", key, err)
		}
		s.logger.Info("corpus embedder fingerprint claimed", "key", key, "value", want)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading embedder fingerprint %s: %w", key, err)
	}

	if recorded != want {
		return fmt.Errorf("%w: corpus indexed with %s %q, configured %q",
			ErrEmbedderMismatch, key, recorded, want)
	}
	return nil
}

// Add embeds a passage and upserts it into the corpus.
func (s *Store) Add(ctx context.Context, p Passage) error {
	embedding, err := s.embedText(ctx, p.Content)
	if err != nil {
		return fmt.Errorf("embedding passage %q: %w", p.ID, err)
	}

	err = s.queries.UpsertPassage(ctx, UpsertPassageParams{
		ID:        p.ID,
		Content:   p.Content,
		SourceID:  p.SourceID,
		Embedding: pgvector.NewVector(embedding),
	})
	if err != nil {
		return err
	}

	s.logger.Debug("added passage", "id", p.ID, "source", p.SourceID, "content_length", len(p.Content))
	return nil
}

// Retrieve returns the k passages most similar to the standalone question,
// ranked by similarity descending. For a fixed query and fixed index state the
// result order is deterministic (distance ties break on passage id).
func (s *Store) Retrieve(ctx context.Context, question string, k int) ([]Passage, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embedText(queryCtx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.queries.SearchPassages(queryCtx, pgvector.NewVector(embedding), int32(k)) // #nosec G115 -- k validated above, bounded by config
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(rows))
	for _, row := range rows {
		var createdAt time.Time
		if row.CreatedAt.Valid {
			createdAt = row.CreatedAt.Time
		}
		passages = append(passages, Passage{
			ID:         row.ID,
			Content:    row.Content,
			SourceID:   row.SourceID,
			CreatedAt:  createdAt,
			Similarity: row.Similarity,
		})
	}

	s.logger.Debug("retrieved passages", "count", len(passages), "k", k)
	return passages, nil
}

// Count returns the number of passages in the corpus.
func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := s.queries.CountPassages(ctx)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Delete removes a passage from the corpus.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.queries.DeletePassage(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("deleted passage", "id", id)
	return nil
}

// embedText generates an embedding for a single text.
func (s *Store) embedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: s.embedOpts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
