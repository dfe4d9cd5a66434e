package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iris0/iris/internal/log"
	"github.com/iris0/iris/internal/session"
)

func sessionMux(store session.Store) *http.ServeMux {
	mux := http.NewServeMux()
	NewSessionHandler(store, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestSessionCreateAndGet(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	mux := sessionMux(store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), created.Version)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Empty(t, got.History)
}

func TestSessionGetMissing(t *testing.T) {
	t.Parallel()

	mux := sessionMux(session.NewMemoryStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	sess := session.NewSession()
	require.NoError(t, store.Create(ctx, sess))

	mux := sessionMux(store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+sess.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
