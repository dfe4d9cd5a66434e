package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/iris0/iris/internal/corpus"
)

// Model-call pacing. Providers throttle aggressively on free tiers; a small
// shared bucket keeps concurrent sessions from tripping upstream 429s.
const (
	llmRate  rate.Limit = 2
	llmBurst            = 4
)

// LLM implements Condenser and Generator on top of a Genkit instance. The
// answer model and the condense model may differ; condensing tolerates a
// lighter model since it only rewrites a question.
//
// Temperature is pinned to 0 for both calls. Reproducibility is favored over
// creative variation, so this is not configurable.
type LLM struct {
	g             *genkit.Genkit
	model         string
	condenseModel string
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// NewLLM creates an LLM using full model names (e.g. "googleai/gemini-2.5-flash").
// condenseModel falls back to model when empty.
func NewLLM(g *genkit.Genkit, model, condenseModel string, logger *slog.Logger) *LLM {
	if condenseModel == "" {
		condenseModel = model
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{
		g:             g,
		model:         model,
		condenseModel: condenseModel,
		limiter:       rate.NewLimiter(llmRate, llmBurst),
		logger:        logger,
	}
}

// Condense rewrites followUp as a standalone question using the conversation
// history. An empty history needs no rewriting and returns followUp directly.
func (l *LLM) Condense(ctx context.Context, history []Turn, followUp string) (string, error) {
	if len(history) == 0 {
		return followUp, nil
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("condensing question: %w", err)
	}

	response, err := genkit.Generate(ctx, l.g,
		ai.WithModelName(l.condenseModel),
		ai.WithPrompt(renderCondensePrompt(history, followUp)),
		ai.WithConfig(deterministicConfig(l.condenseModel)),
	)
	if err != nil {
		return "", fmt.Errorf("condensing question: %w", err)
	}

	standalone := strings.TrimSpace(response.Text())
	if standalone == "" {
		return "", fmt.Errorf("condensing question: model returned empty rewrite")
	}

	l.logger.Debug("condensed question", "follow_up", followUp, "standalone", standalone)
	return standalone, nil
}

// Generate answers the standalone question grounded on the given passages.
// With no passages there is nothing to ground on, so the fixed refusal is
// returned without calling the model.
func (l *LLM) Generate(ctx context.Context, question string, passages []corpus.Passage) (string, error) {
	if len(passages) == 0 {
		return refusalAnswer, nil
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	response, err := genkit.Generate(ctx, l.g,
		ai.WithModelName(l.model),
		ai.WithPrompt(renderQAPrompt(question, passages)),
		ai.WithConfig(deterministicConfig(l.model)),
	)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	answer := strings.TrimSpace(response.Text())
	if answer == "" {
		return "", fmt.Errorf("generating answer: model returned empty text")
	}
	return answer, nil
}

// deterministicConfig returns a temperature-0 generation config in the shape
// the model's plugin expects.
func deterministicConfig(model string) any {
	if strings.HasPrefix(model, "googleai/") || strings.HasPrefix(model, "vertexai/") {
		return &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}
	}
	return map[string]any{"temperature": 0.0}
}

var (
	_ Condenser = (*LLM)(nil)
	_ Generator = (*LLM)(nil)
)
