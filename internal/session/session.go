// Package session persists per-conversation history keyed by session id.
//
// A session owns the ordered, append-only sequence of completed turns that
// the answer chain condenses against. Two backends exist: an in-process map
// for single-instance deployments and Redis for anything that needs to
// survive a restart or span replicas. Both use optimistic locking so two
// concurrent turns on the same session cannot silently drop each other's
// history.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iris0/iris/internal/chain"
)

var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrExists indicates a session with the same id already exists.
	ErrExists = errors.New("session already exists")

	// ErrVersionConflict indicates a concurrent update won; the caller
	// should re-read the session and decide whether to retry.
	ErrVersionConflict = errors.New("session version conflict")
)

// Session is the serializable state of one conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version increases monotonically on every update; Store.Update
	// rejects writes whose Version does not match the stored one.
	Version int64 `json:"version"`

	// History is append-only: a turn is added only after its answer was
	// fully produced.
	History []chain.Turn `json:"history"`
}

// NewSession creates an empty session with a fresh id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// AppendTurn records a completed exchange.
func (s *Session) AppendTurn(question, answer string) {
	s.History = append(s.History, chain.Turn{Question: question, Answer: answer})
}

// clone copies the session so callers and the store never alias the same
// history slice.
func (s *Session) clone() *Session {
	c := *s
	c.History = append([]chain.Turn(nil), s.History...)
	return &c
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Create persists a new session, setting Version to 1.
	// Returns ErrExists if the id is taken.
	Create(ctx context.Context, sess *Session) error

	// Get retrieves a session by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Session, error)

	// Update persists a modified session with optimistic locking: the
	// stored Version must match sess.Version, which is then incremented.
	// Returns ErrNotFound or ErrVersionConflict.
	Update(ctx context.Context, sess *Session) error

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}
