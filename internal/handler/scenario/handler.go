package scenario

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/scenario"
)

// Handler exposes scenario CRUD over REST. The store decides whether a
// write touches a preset; the handler only maps its errors to statuses.
type Handler struct {
	scenarios scenario.Store
}

// New creates the scenario handler.
func New(scenarios scenario.Store) *Handler {
	return &Handler{scenarios: scenarios}
}

// RegisterRoutes mounts the scenario endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{scenarioID}", h.handleGet)
		r.Put("/{scenarioID}", h.handleUpdate)
		r.Delete("/{scenarioID}", h.handleDelete)
	})
}

// handleList returns all scenarios, presets first.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.scenarios.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load scenarios")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"scenarios": scenarios,
		"total":     len(scenarios),
	})
}

// handleGet returns one scenario by id.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scenarios.FindByID(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		if errors.Is(err, scenario.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Szenario nicht gefunden")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load scenario")
		return
	}

	respondJSON(w, http.StatusOK, sc)
}

// handleCreate stores a new user scenario.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload scenario.Scenario
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := payload.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.scenarios.Create(r.Context(), payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create scenario")
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// handleUpdate rewrites a user scenario. The id always comes from the
// URL; an id in the body is ignored.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload scenario.Scenario
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.ID = chi.URLParam(r, "scenarioID")
	if err := payload.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.scenarios.Update(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, scenario.ErrPresetReadOnly):
			respondError(w, http.StatusForbidden, "Preset-Szenarien können nicht geändert werden")
		case errors.Is(err, scenario.ErrNotFound):
			respondError(w, http.StatusNotFound, "Szenario nicht gefunden")
		default:
			respondError(w, http.StatusInternalServerError, "failed to update scenario")
		}
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// handleDelete removes a user scenario.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.scenarios.Delete(r.Context(), chi.URLParam(r, "scenarioID"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, scenario.ErrPresetReadOnly):
		respondError(w, http.StatusForbidden, "Preset-Szenarien können nicht gelöscht werden")
	case errors.Is(err, scenario.ErrNotFound):
		respondError(w, http.StatusNotFound, "Szenario nicht gefunden")
	default:
		respondError(w, http.StatusInternalServerError, "Löschen fehlgeschlagen")
	}
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
