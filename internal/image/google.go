// Package image fetches one illustrative image for an answer via the Google
// Custom Search API, plus the LLM-backed extraction of search terms from
// answer text.
package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleSearchURL is the Custom Search JSON API endpoint.
const GoogleSearchURL = "https://www.googleapis.com/customsearch/v1"

const searchTimeout = 10 * time.Second

var (
	// ErrEmptyQuery indicates a missing or blank search query.
	ErrEmptyQuery = errors.New("search query must not be empty")

	// ErrNoResult indicates the search returned no usable image.
	ErrNoResult = errors.New("no image found")

	// ErrInvalidScheme indicates the top result's URL scheme is neither
	// http nor https. Treated the same as no result.
	ErrInvalidScheme = errors.New("invalid image url scheme")

	// ErrUpstream indicates the search API call itself failed.
	ErrUpstream = errors.New("image search upstream failure")
)

// Image is one search hit: the image itself and the page it came from, for
// attribution.
type Image struct {
	URL    string `json:"imageUrl"`
	Source string `json:"imageSource"`
}

// GoogleClient queries Google Custom Search for images. Credentials come
// from configuration at startup, never from the request path.
//
// GoogleClient is safe for concurrent use.
type GoogleClient struct {
	apiKey         string
	searchEngineID string
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewGoogleClient creates a client for the Custom Search API.
func NewGoogleClient(apiKey, searchEngineID string, logger *slog.Logger) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, errors.New("google search api key is required")
	}
	if searchEngineID == "" {
		return nil, errors.New("google search engine id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleClient{
		apiKey:         apiKey,
		searchEngineID: searchEngineID,
		baseURL:        GoogleSearchURL,
		httpClient:     &http.Client{Timeout: searchTimeout},
		logger:         logger,
	}, nil
}

// searchResponse mirrors the fields of the Custom Search response we use.
type searchResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Image struct {
			ContextLink string `json:"contextLink"`
		} `json:"image"`
	} `json:"items"`
}

// Search returns the first image hit for query. The top result is taken
// as-is; a result with a non-http(s) URL is rejected rather than skipped so
// behavior stays deterministic.
func (c *GoogleClient) Search(ctx context.Context, query string) (Image, error) {
	if strings.TrimSpace(query) == "" {
		return Image{}, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.searchEngineID)
	params.Set("searchType", "image")
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Image{}, fmt.Errorf("%w: building request: %v", ErrUpstream, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		// Upstream bodies can carry key details; log, never forward.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("image search upstream error",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return Image{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Image{}, fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}

	if len(result.Items) == 0 {
		return Image{}, ErrNoResult
	}

	top := result.Items[0]
	scheme, _, found := strings.Cut(top.Link, ":")
	if !found || (scheme != "http" && scheme != "https") {
		c.logger.Debug("rejected image result", "url", top.Link)
		return Image{}, ErrInvalidScheme
	}

	c.logger.Debug("image found", "query", query, "url", top.Link)
	return Image{URL: top.Link, Source: top.Image.ContextLink}, nil
}
