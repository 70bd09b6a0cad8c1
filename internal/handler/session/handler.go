package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/konfliktlab/konfliktsim/backend/internal/db"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/session"
)

// Handler serves session history and the health probe. Live sessions are
// answered from the in-memory store, finished ones from the archive.
type Handler struct {
	sessions *session.Store
	archive  *db.SessionArchive
	aiReady  bool
}

// New creates the session handler. aiReady reports whether a generation
// provider is configured; without one the health probe reports degraded.
func New(sessions *session.Store, archive *db.SessionArchive, aiReady bool) *Handler {
	return &Handler{
		sessions: sessions,
		archive:  archive,
		aiReady:  aiReady,
	}
}

// RegisterRoutes mounts the session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{sessionID}", h.handleGet)
		r.Delete("/{sessionID}", h.handleDelete)
	})
}

// RegisterHealth mounts the health probe outside the API group.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.aiReady {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":             status,
		"api_key_configured": h.aiReady,
		"active_sessions":    h.sessions.Len(),
	})
}

// handleList returns the archived session summaries, newest first. A
// summary only reports active when the session is still resident in the
// live store; rows left active by a crashed or evicted session do not.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.archive.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}

	live := make(map[string]bool)
	for _, id := range h.sessions.IDs() {
		live[id] = true
	}
	for i := range records {
		if records[i].IsActive && !live[records[i].ID] {
			records[i].IsActive = false
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": records,
		"total":    len(records),
	})
}

// handleGet returns one session with its transcript. A live session wins
// over its archived snapshot because it may carry turns not yet flushed
// to disk.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if st, err := h.sessions.Get(r.Context(), id); err == nil {
		active := st.NextSpeaker != conversation.SpeakerEnd
		respondJSON(w, http.StatusOK, db.RecordFromState(st, active))
		return
	}

	rec, err := h.archive.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	// The live lookup above already failed, so whatever the archive row
	// claims, this session can no longer be driven.
	rec.IsActive = false
	respondJSON(w, http.StatusOK, rec)
}

// handleDelete removes a session from the live store and the archive.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	liveErr := h.sessions.Remove(r.Context(), id)
	archiveErr := h.archive.Delete(r.Context(), id)

	if archiveErr != nil && !errors.Is(archiveErr, db.ErrSessionNotFound) {
		respondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if liveErr != nil && archiveErr != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
