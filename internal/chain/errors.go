package chain

import "errors"

var (
	// ErrEmptyQuestion indicates the follow-up question was empty or
	// whitespace. Maps to an invalid-input response at the API boundary.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrRetrieval indicates the vector index call failed. The turn is
	// aborted; nothing is recorded.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrGeneration indicates the answer model call failed.
	ErrGeneration = errors.New("generation failed")
)
