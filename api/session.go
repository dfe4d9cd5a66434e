package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iris0/iris/internal/session"
)

// SessionHandler handles session CRUD for server-held conversation history.
type SessionHandler struct {
	store  session.Store
	logger *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store session.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	sess := session.NewSession()
	if err := h.store.Create(r.Context(), sess); err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := h.store.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
