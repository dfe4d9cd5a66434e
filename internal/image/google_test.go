package image

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iris0/iris/internal/log"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGoogleClient("test-key", "test-cx", log.NewNop())
	require.NoError(t, err)
	client.baseURL = server.URL
	return client
}

func TestNewGoogleClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewGoogleClient("", "cx", log.NewNop())
	assert.Error(t, err)

	_, err = NewGoogleClient("key", "", log.NewNop())
	assert.Error(t, err)
}

func TestSearchReturnsTopResult(t *testing.T) {
	t.Parallel()

	var gotQuery, gotKey, gotCX, gotType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		gotCX = r.URL.Query().Get("cx")
		gotType = r.URL.Query().Get("searchType")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"link":"https://img.example.com/abrasion.jpg","image":{"contextLink":"https://example.com/article"}},
			{"link":"https://img.example.com/second.jpg","image":{"contextLink":"https://example.com/other"}}
		]}`))
	})

	img, err := client.Search(context.Background(), "corneal abrasion")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/abrasion.jpg", img.URL)
	assert.Equal(t, "https://example.com/article", img.Source)

	assert.Equal(t, "corneal abrasion", gotQuery)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "test-cx", gotCX)
	assert.Equal(t, "image", gotType)
}

func TestSearchRejectsNonHTTPScheme(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"link":"ftp://img.example.com/x.jpg","image":{"contextLink":"https://example.com"}}]}`))
	})

	_, err := client.Search(context.Background(), "corneal abrasion")
	assert.ErrorIs(t, err, ErrInvalidScheme)
}

func TestSearchNoItems(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.Search(context.Background(), "nonexistent thing")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestSearchUpstreamFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusForbidden)
	})

	_, err := client.Search(context.Background(), "corneal abrasion")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	// Raw upstream bodies are logged, never surfaced.
	assert.NotContains(t, err.Error(), "quota exceeded")
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	client, err := NewGoogleClient("key", "cx", log.NewNop())
	require.NoError(t, err)

	for _, q := range []string{"", "   "} {
		_, err := client.Search(context.Background(), q)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	}
}

func TestSearchMalformedResponse(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Search(context.Background(), "corneal abrasion")
	assert.ErrorIs(t, err, ErrUpstream)
}
