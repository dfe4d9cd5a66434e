package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iris0/iris/internal/chain"
	"github.com/iris0/iris/internal/session"
)

// MaxQuestionLength bounds the accepted question size in bytes.
const MaxQuestionLength = 4096

// maxBodyBytes caps the request body read for JSON endpoints. A long
// conversation history fits comfortably; anything bigger is not a chat turn.
const maxBodyBytes = 1 << 20

// Asker runs one conversational turn. Satisfied by *chain.Chain.
type Asker interface {
	Ask(ctx context.Context, question string, history []chain.Turn) (chain.Result, error)
}

// ChatHandler handles the question-answering endpoint.
//
// Two calling styles share POST /api/chat:
//   - stateless: the client sends its own history as [question, answer]
//     pairs and keeps the updated history itself;
//   - session-bound: the client sends a sessionId from POST /api/sessions
//     and the server owns the history.
//
// The styles are mutually exclusive: a request carrying both a sessionId and
// inline history is rejected, since one of them would have to be silently
// ignored.
//
// Either way a turn is atomic: history grows only when the full answer was
// produced, so a failed turn leaves it untouched.
type ChatHandler struct {
	asker    Asker
	sessions session.Store
	logger   *slog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(asker Asker, sessions session.Store, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{asker: asker, sessions: sessions, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.ask)
}

// chatRequest is the inbound payload. History entries are [question, answer]
// pairs in conversation order.
type chatRequest struct {
	Question  string      `json:"question"`
	History   [][2]string `json:"history"`
	SessionID string      `json:"sessionId"`
}

// sourceDocument is one supporting passage in the response.
type sourceDocument struct {
	PageContent string         `json:"pageContent"`
	Metadata    sourceMetadata `json:"metadata"`
}

type sourceMetadata struct {
	Source string `json:"source"`
}

// chatResponse is the outbound payload.
type chatResponse struct {
	Text            string           `json:"text"`
	SourceDocuments []sourceDocument `json:"sourceDocuments"`
	SessionID       string           `json:"sessionId,omitempty"`
}

func (h *ChatHandler) ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "question too long")
		return
	}
	if req.SessionID != "" && len(req.History) > 0 {
		writeError(w, http.StatusBadRequest, "history and sessionId are mutually exclusive")
		return
	}

	if req.SessionID != "" {
		h.askSession(w, r, req)
		return
	}

	history := make([]chain.Turn, 0, len(req.History))
	for _, pair := range req.History {
		history = append(history, chain.Turn{Question: pair[0], Answer: pair[1]})
	}

	result, err := h.asker.Ask(r.Context(), req.Question, history)
	if err != nil {
		h.writeAskError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatResponse(result, ""))
}

// askSession runs a turn against server-held history and records it on
// success. An update losing the optimistic-lock race means another turn on
// the same session committed concurrently; the client gets a conflict and
// its answer is dropped rather than recorded out of order.
func (h *ChatHandler) askSession(w http.ResponseWriter, r *http.Request, req chatRequest) {
	sess, err := h.sessions.Get(r.Context(), req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	result, err := h.asker.Ask(r.Context(), req.Question, sess.History)
	if err != nil {
		h.writeAskError(w, err)
		return
	}

	sess.AppendTurn(req.Question, result.Answer)
	if err := h.sessions.Update(r.Context(), sess); err != nil {
		if errors.Is(err, session.ErrVersionConflict) {
			writeError(w, http.StatusConflict, "session was updated concurrently")
			return
		}
		h.logger.Error("failed to record turn", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record turn")
		return
	}

	writeJSON(w, http.StatusOK, toChatResponse(result, sess.ID))
}

func (h *ChatHandler) writeAskError(w http.ResponseWriter, err error) {
	if errors.Is(err, chain.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	// Upstream details (index, model) stay in the logs; the chain already
	// logged the failing stage.
	writeError(w, http.StatusInternalServerError, "failed to answer question")
}

func toChatResponse(result chain.Result, sessionID string) chatResponse {
	docs := make([]sourceDocument, 0, len(result.Sources))
	for _, p := range result.Sources {
		docs = append(docs, sourceDocument{
			PageContent: p.Content,
			Metadata:    sourceMetadata{Source: p.SourceID},
		})
	}
	return chatResponse{
		Text:            result.Answer,
		SourceDocuments: docs,
		SessionID:       sessionID,
	}
}
