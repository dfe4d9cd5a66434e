package image

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// termsPrompt asks for a short noun phrase an image search can use. The
// answer text can be long and markdown-heavy, so the model does the
// distilling.
const termsPrompt = `Extract a short image search query (2 to 5 words) that captures the main medical subject of the following text. Respond with only the search terms, no punctuation or explanation.

Text:
%s

Search terms:`

// maxTermsInputRunes truncates oversized answers before sending them to the
// model; the subject is almost always established early in the text.
const maxTermsInputRunes = 2000

// TermExtractor derives image search terms from answer text with a model
// call.
type TermExtractor struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger
}

// NewTermExtractor creates a TermExtractor using the full model name.
func NewTermExtractor(g *genkit.Genkit, model string, logger *slog.Logger) *TermExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TermExtractor{g: g, model: model, logger: logger}
}

// Extract returns short search terms for text.
func (e *TermExtractor) Extract(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyQuery
	}

	runes := []rune(text)
	if len(runes) > maxTermsInputRunes {
		text = string(runes[:maxTermsInputRunes])
	}

	response, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.model),
		ai.WithPrompt(fmt.Sprintf(termsPrompt, text)),
	)
	if err != nil {
		return "", fmt.Errorf("extracting search terms: %w", err)
	}

	terms := strings.Join(strings.Fields(response.Text()), " ")
	terms = strings.Trim(terms, `"'`)
	if terms == "" {
		return "", fmt.Errorf("extracting search terms: model returned empty text")
	}

	e.logger.Debug("extracted search terms", "terms", terms)
	return terms, nil
}
