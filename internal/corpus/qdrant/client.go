// Package qdrant provides an alternative corpus backend over a Qdrant
// cluster. It mirrors the retrieval contract of the pgvector store so the
// answer chain can run against either, selected by configuration.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/iris0/iris/internal/corpus"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant server address (e.g. "https://example.qdrant.io:6334").
	// A bare host defaults to https and the gRPC port 6334.
	URL string

	// Collection is the name of the collection holding corpus passages.
	Collection string

	// APIKey is an optional API key for authentication.
	APIKey string
}

// Querier is the subset of the qdrant client the store uses.
// Tests substitute a fake, production uses *qdrant.Client.
type Querier interface {
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Close() error
}

// Store retrieves corpus passages from a Qdrant collection. Like the
// pgvector store it embeds queries itself, so the embedder must be the one
// that indexed the collection.
type Store struct {
	client     Querier
	collection string
	embedder   ai.Embedder
	embedOpts  any
	logger     *slog.Logger
}

// New connects to Qdrant and returns a Store over cfg.Collection.
// embedOpts is the provider-specific embed request config (nil for the
// embedder's default output); it must match whatever indexed the collection.
func New(cfg Config, embedder ai.Embedder, embedOpts any, logger *slog.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}

	addr := cfg.URL
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "https://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		embedOpts:  embedOpts,
		logger:     logger,
	}, nil
}

// NewWithQuerier builds a Store over an existing querier. Used by tests.
func NewWithQuerier(q Querier, collection string, embedder ai.Embedder, embedOpts any, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: q, collection: collection, embedder: embedder, embedOpts: embedOpts, logger: logger}
}

// searchTimeout bounds a single vector search, matching the pgvector store.
const searchTimeout = 10 * time.Second

// Retrieve returns the k passages most similar to the standalone question,
// ranked by score descending.
func (s *Store) Retrieve(ctx context.Context, question string, k int) ([]corpus.Passage, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embedText(queryCtx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	limit := uint64(k) // #nosec G115 -- k validated above, bounded by config
	points, err := s.client.Query(queryCtx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	passages := make([]corpus.Passage, 0, len(points))
	for _, point := range points {
		passages = append(passages, passageFromPoint(point))
	}

	s.logger.Debug("retrieved passages", "count", len(passages), "k", k, "collection", s.collection)
	return passages, nil
}

// Add embeds a passage and upserts it into the collection. Payload keys
// mirror the pgvector columns so either backend can serve the same corpus.
func (s *Store) Add(ctx context.Context, p corpus.Passage) error {
	embedding, err := s.embedText(ctx, p.Content)
	if err != nil {
		return fmt.Errorf("embedding passage %q: %w", p.ID, err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(p.ID),
			Vectors: qdrant.NewVectors(embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"passage_id": p.ID,
				"content":    p.Content,
				"source_id":  p.SourceID,
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("upserting passage %q: %w", p.ID, err)
	}

	s.logger.Debug("added passage", "id", p.ID, "source", p.SourceID, "collection", s.collection)
	return nil
}

// Delete removes a passage from the collection.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		return fmt.Errorf("deleting passage %q: %w", id, err)
	}
	return nil
}

// Count returns the number of passages in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return int(n), nil // #nosec G115 -- corpus sizes fit in int
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

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

// pointID maps a passage id to a qdrant point id. Qdrant only accepts UUIDs
// or integers, so arbitrary ids are mapped through a deterministic UUIDv5.
func pointID(id string) *qdrant.PointId {
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewID(u.String())
	}
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// passageFromPoint converts a scored point back into a Passage.
func passageFromPoint(point *qdrant.ScoredPoint) corpus.Passage {
	p := corpus.Passage{Similarity: point.Score}

	if point.Id != nil {
		if u := point.Id.GetUuid(); u != "" {
			p.ID = u
		} else if num := point.Id.GetNum(); num != 0 {
			p.ID = strconv.FormatUint(num, 10)
		}
	}

	for k, v := range point.GetPayload() {
		switch k {
		case "passage_id":
			if str := v.GetStringValue(); str != "" {
				p.ID = str
			}
		case "content":
			p.Content = v.GetStringValue()
		case "source_id":
			p.SourceID = v.GetStringValue()
		}
	}
	return p
}
