package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iris0/iris/internal/image"
)

// Searcher finds one illustrative image. Satisfied by *image.GoogleClient.
type Searcher interface {
	Search(ctx context.Context, query string) (image.Image, error)
}

// Extractor derives short search terms from answer text. Satisfied by
// *image.TermExtractor.
type Extractor interface {
	Extract(ctx context.Context, text string) (string, error)
}

// ImageHandler handles image lookup and search-term extraction.
type ImageHandler struct {
	searcher  Searcher
	extractor Extractor
	logger    *slog.Logger
}

// NewImageHandler creates a new image handler.
func NewImageHandler(searcher Searcher, extractor Extractor, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{searcher: searcher, extractor: extractor, logger: logger}
}

// RegisterRoutes registers image routes on the given mux. The extraction
// route is only registered when an extractor is available.
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/fetch_image", h.fetch)
	if h.extractor != nil {
		mux.HandleFunc("POST /api/get_search_terms", h.terms)
	}
}

// fetch looks up one image for the query parameter.
// Responses: 200 {imageUrl, imageSource}, 400 on a missing query, 404 when
// nothing usable was found, 500 on upstream failure.
func (h *ImageHandler) fetch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Invalid search query")
		return
	}

	img, err := h.searcher.Search(r.Context(), query)
	switch {
	case errors.Is(err, image.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "Invalid search query")
	case errors.Is(err, image.ErrInvalidScheme):
		writeError(w, http.StatusNotFound, "Invalid image URL scheme")
	case errors.Is(err, image.ErrNoResult):
		writeError(w, http.StatusNotFound, "No image found")
	case err != nil:
		h.logger.Error("image lookup failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "Error fetching image")
	default:
		writeJSON(w, http.StatusOK, img)
	}
}

// termsRequest carries the answer text to distill into search terms.
type termsRequest struct {
	ChatResponse string `json:"chatResponse"`
}

type termsResponse struct {
	SearchTerms string `json:"searchTerms"`
}

func (h *ImageHandler) terms(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req termsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatResponse == "" {
		writeError(w, http.StatusBadRequest, "chatResponse is required")
		return
	}

	terms, err := h.extractor.Extract(r.Context(), req.ChatResponse)
	if err != nil {
		h.logger.Error("term extraction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to extract search terms")
		return
	}

	writeJSON(w, http.StatusOK, termsResponse{SearchTerms: terms})
}
