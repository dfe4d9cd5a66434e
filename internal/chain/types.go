// Package chain implements the conversational question-answering pipeline:
// a follow-up question is condensed against the conversation history into a
// standalone question, relevant passages are retrieved from the corpus, and
// a grounded answer is generated from those passages.
//
// A turn is atomic: the caller's history is never mutated here, and a Result
// is only produced when every stage succeeds. Chain is safe for concurrent
// use; per-session state travels in the arguments.
package chain

import (
	"context"

	"github.com/iris0/iris/internal/corpus"
)

// Turn is one completed question/answer exchange. History is an ordered,
// append-only sequence of Turns; the order is significant because it
// reconstructs conversational context for condensing.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Result is the outcome of one successful turn.
type Result struct {
	// Answer is the generated answer text, typically ending with the
	// model's confidence annotation.
	Answer string `json:"answer"`

	// Standalone is the condensed question actually used for retrieval.
	Standalone string `json:"standalone"`

	// Sources are the passages the answer was grounded on, ranked by
	// similarity descending.
	Sources []corpus.Passage `json:"sources"`

	// Confidence is the model's self-reported confidence percentage parsed
	// from the answer, or -1 when the annotation is absent or malformed.
	// It is advisory display text, not a verified probability.
	Confidence int `json:"confidence"`
}

// Condenser rewrites a follow-up question as a standalone question.
type Condenser interface {
	Condense(ctx context.Context, history []Turn, followUp string) (string, error)
}

// Retriever returns the k passages most similar to the standalone question.
// Both the pgvector and qdrant corpus stores satisfy this.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]corpus.Passage, error)
}

// Generator produces a grounded answer from the question and its context
// passages. It owns the "don't know" fallback when context is empty.
type Generator interface {
	Generate(ctx context.Context, question string, passages []corpus.Passage) (string, error)
}

// State names the stage a turn is in. Used for logging and error context.
type State int

const (
	StateIdle State = iota
	StateCondensing
	StateRetrieving
	StateGenerating
	StateComplete
	StateFailed
)

// String returns the lowercase stage name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCondensing:
		return "condensing"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
