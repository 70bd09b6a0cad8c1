package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/konfliktlab/konfliktsim/backend/internal/db"
	"github.com/konfliktlab/konfliktsim/backend/internal/handler/scenario"
	"github.com/konfliktlab/konfliktsim/backend/internal/handler/session"
	"github.com/konfliktlab/konfliktsim/backend/internal/handler/ws"
	middlewarePkg "github.com/konfliktlab/konfliktsim/backend/internal/middleware"
	scenarioModel "github.com/konfliktlab/konfliktsim/backend/internal/model/scenario"
	sessionService "github.com/konfliktlab/konfliktsim/backend/internal/service/session"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/sim"
	"github.com/konfliktlab/konfliktsim/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(engine *sim.Engine, sessions *sessionService.Store, scenarios scenarioModel.Store, archive *db.SessionArchive, aiReady bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	scenarioHandler := scenario.New(scenarios)
	sessionHandler := session.New(sessions, archive, aiReady)
	wsHandler := ws.New(engine, scenarios)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status":  "running",
			"name":    "Konflikt-Simulator API",
			"version": "1.0.0",
		})
	})
	sessionHandler.RegisterHealth(r)
	wsHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		scenarioHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
	})

	return r
}
