// Package api exposes the engine over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/beacon/internal/api/middleware"
	"github.com/btouchard/beacon/internal/auth"
	"github.com/btouchard/beacon/internal/engine"
)

const maxBodyBytes = 64 << 10

// Deps holds what the router serves.
type Deps struct {
	Engine  *engine.Engine
	Secret  auth.Source
	WS      http.Handler // client transport, mounted at /ws
	MCP     http.Handler // streamable MCP endpoint, mounted at /mcp
	Version string
}

// NewRouter builds the HTTP handler tree. Everything except /health needs
// the local secret.
func NewRouter(d Deps) http.Handler {
	h := &handler{engine: d.Engine}

	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": d.Version,
			"tracked": d.Engine.Tracked(),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerToken(d.Secret))

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.MaxBody(maxBodyBytes))

			r.Post("/activity", h.reportActivity)
			r.Post("/reconcile", h.reconcile)

			r.Get("/tasks", h.listTasks)
			r.Post("/tasks", h.createTask)
			r.Get("/tasks/{id}", h.getTask)
			r.Delete("/tasks/{id}", h.deleteTask)
			r.Put("/tasks/{id}/review", h.setReview)
			r.Post("/tasks/{id}/cancel", h.cancelTask)
		})

		if d.WS != nil {
			r.Handle("/ws", d.WS)
		}
		if d.MCP != nil {
			r.Handle("/mcp", d.MCP)
		}
	})

	return r
}
