package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iris0/iris/internal/image"
	"github.com/iris0/iris/internal/log"
)

type fakeSearcher struct {
	img      image.Image
	err      error
	gotQuery string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) (image.Image, error) {
	f.gotQuery = query
	if f.err != nil {
		return image.Image{}, f.err
	}
	return f.img, nil
}

type fakeExtractor struct {
	terms string
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.terms, nil
}

func imageMux(searcher Searcher, extractor Extractor) *http.ServeMux {
	mux := http.NewServeMux()
	NewImageHandler(searcher, extractor, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestImageFetch(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{img: image.Image{
		URL:    "https://img.example.com/abrasion.jpg",
		Source: "https://example.com/article",
	}}
	mux := imageMux(searcher, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/fetch_image?query=corneal+abrasion", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://img.example.com/abrasion.jpg", resp["imageUrl"])
	assert.Equal(t, "https://example.com/article", resp["imageSource"])
	assert.Equal(t, "corneal abrasion", searcher.gotQuery)
}

func TestImageFetchMissingQuery(t *testing.T) {
	t.Parallel()

	mux := imageMux(&fakeSearcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/fetch_image", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid search query", resp.Error)
}

func TestImageFetchErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid scheme", image.ErrInvalidScheme, http.StatusNotFound},
		{"no result", image.ErrNoResult, http.StatusNotFound},
		{"upstream failure", image.ErrUpstream, http.StatusInternalServerError},
		{"other failure", errors.New("dns lookup failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mux := imageMux(&fakeSearcher{err: tt.err}, nil)

			req := httptest.NewRequest(http.MethodGet, "/api/fetch_image?query=corneal+abrasion", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestImageTerms(t *testing.T) {
	t.Parallel()

	mux := imageMux(&fakeSearcher{}, &fakeExtractor{terms: "corneal abrasion treatment"})

	req := httptest.NewRequest(http.MethodPost, "/api/get_search_terms",
		strings.NewReader(`{"chatResponse": "A corneal abrasion is usually treated with..."}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp termsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "corneal abrasion treatment", resp.SearchTerms)
}

func TestImageTermsValidation(t *testing.T) {
	t.Parallel()

	mux := imageMux(&fakeSearcher{}, &fakeExtractor{terms: "x"})

	for _, body := range []string{`{`, `{}`, `{"chatResponse": ""}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/get_search_terms", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestImageTermsRouteRequiresExtractor(t *testing.T) {
	t.Parallel()

	mux := imageMux(&fakeSearcher{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/get_search_terms", strings.NewReader(`{"chatResponse": "x"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
