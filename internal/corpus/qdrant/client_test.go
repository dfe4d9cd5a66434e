package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iris0/iris/internal/corpus"
	"github.com/iris0/iris/internal/log"
)

type fakeEmbedder struct {
	embedding []float32
	err       error
	lastOpts  any
}

func (f *fakeEmbedder) Name() string            { return "fake-embedder" }
func (f *fakeEmbedder) Register(r api.Registry) {}

func (f *fakeEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	f.lastOpts = req.Options
	if f.err != nil {
		return nil, f.err
	}
	emb := f.embedding
	if emb == nil {
		emb = []float32{0.1, 0.2}
	}
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: emb}}}, nil
}

type fakeClient struct {
	queryReq  *qdrant.QueryPoints
	queryResp []*qdrant.ScoredPoint
	queryErr  error
	upsertReq *qdrant.UpsertPoints
	upsertErr error
	deleteReq *qdrant.DeletePoints
	count     uint64
	closed    bool
}

func (f *fakeClient) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queryReq = req
	return f.queryResp, f.queryErr
}

func (f *fakeClient) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upsertReq = req
	return &qdrant.UpdateResult{}, f.upsertErr
}

func (f *fakeClient) Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.deleteReq = req
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error) {
	return f.count, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Collection: "passages"}, &fakeEmbedder{}, nil, log.NewNop())
	assert.Error(t, err, "missing url")

	_, err = New(Config{URL: "qdrant.example.com"}, &fakeEmbedder{}, nil, log.NewNop())
	assert.Error(t, err, "missing collection")
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	t.Run("maps payload to passages", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{queryResp: []*qdrant.ScoredPoint{
			{
				Id:    qdrant.NewID("5f0c09c4-3a24-4be0-9c3d-000000000001"),
				Score: 0.91,
				Payload: qdrant.NewValueMap(map[string]any{
					"passage_id": "p1",
					"content":    "The cornea refracts incoming light.",
					"source_id":  "anatomy-02",
				}),
			},
			{
				Id:    qdrant.NewID("5f0c09c4-3a24-4be0-9c3d-000000000002"),
				Score: 0.77,
				Payload: qdrant.NewValueMap(map[string]any{
					"passage_id": "p2",
					"content":    "Aqueous humor maintains intraocular pressure.",
					"source_id":  "anatomy-03",
				}),
			},
		}}
		store := NewWithQuerier(client, "passages", &fakeEmbedder{}, nil, log.NewNop())

		got, err := store.Retrieve(context.Background(), "how does the eye focus", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, corpus.Passage{
			ID:         "p1",
			Content:    "The cornea refracts incoming light.",
			SourceID:   "anatomy-02",
			Similarity: 0.91,
		}, got[0])
		assert.Equal(t, "p2", got[1].ID)

		require.NotNil(t, client.queryReq)
		assert.Equal(t, "passages", client.queryReq.CollectionName)
		require.NotNil(t, client.queryReq.Limit)
		assert.Equal(t, uint64(10), *client.queryReq.Limit)
	})

	t.Run("rejects non-positive k", func(t *testing.T) {
		t.Parallel()
		store := NewWithQuerier(&fakeClient{}, "passages", &fakeEmbedder{}, nil, log.NewNop())
		_, err := store.Retrieve(context.Background(), "anything", 0)
		assert.Error(t, err)
	})

	t.Run("embedding failure surfaces", func(t *testing.T) {
		t.Parallel()
		store := NewWithQuerier(&fakeClient{}, "passages", &fakeEmbedder{err: errors.New("offline")}, nil, log.NewNop())
		_, err := store.Retrieve(context.Background(), "anything", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding query")
	})

	t.Run("query failure surfaces", func(t *testing.T) {
		t.Parallel()
		store := NewWithQuerier(&fakeClient{queryErr: errors.New("unavailable")}, "passages", &fakeEmbedder{}, nil, log.NewNop())
		_, err := store.Retrieve(context.Background(), "anything", 5)
		assert.Error(t, err)
	})
}

func TestAdd(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	store := NewWithQuerier(client, "passages", &fakeEmbedder{embedding: []float32{0.4, 0.5}}, nil, log.NewNop())

	err := store.Add(context.Background(), corpus.Passage{
		ID:       "p1",
		Content:  "The lens changes shape to focus.",
		SourceID: "anatomy-04",
	})
	require.NoError(t, err)
	require.NotNil(t, client.upsertReq)
	require.Len(t, client.upsertReq.Points, 1)

	payload := client.upsertReq.Points[0].Payload
	assert.Equal(t, "p1", payload["passage_id"].GetStringValue())
	assert.Equal(t, "anatomy-04", payload["source_id"].GetStringValue())
}

// Embed options configured for the provider must reach every embed request,
// mirroring the pgvector store.
func TestEmbedOptionsPassthrough(t *testing.T) {
	t.Parallel()

	type dimOpts struct{ OutputDimensionality int32 }
	opts := &dimOpts{OutputDimensionality: 768}

	emb := &fakeEmbedder{}
	store := NewWithQuerier(&fakeClient{}, "passages", emb, opts, log.NewNop())

	require.NoError(t, store.Add(context.Background(), corpus.Passage{ID: "p1", Content: "text"}))
	assert.Same(t, opts, emb.lastOpts)

	_, err := store.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Same(t, opts, emb.lastOpts)
}

func TestPointIDDeterministic(t *testing.T) {
	t.Parallel()

	// Non-UUID ids map through UUIDv5, so the same id always yields the
	// same point.
	a := pointID("passage-7")
	b := pointID("passage-7")
	assert.Equal(t, a.GetUuid(), b.GetUuid())
	assert.NotEmpty(t, a.GetUuid())

	// UUID ids pass through unchanged.
	c := pointID("5f0c09c4-3a24-4be0-9c3d-000000000001")
	assert.Equal(t, "5f0c09c4-3a24-4be0-9c3d-000000000001", c.GetUuid())
}

func TestCountAndClose(t *testing.T) {
	t.Parallel()

	client := &fakeClient{count: 12}
	store := NewWithQuerier(client, "passages", &fakeEmbedder{}, nil, log.NewNop())

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	require.NoError(t, store.Close())
	assert.True(t, client.closed)
}
