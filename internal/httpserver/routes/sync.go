package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/handlers"
)

func init() {
	Register(registerSync)
	RegisterIn(ScopeStream, registerEvents)
}

func registerSync(r chi.Router, d deps.Deps) {
	r.Get("/sync/status", handlers.SyncStatus(d))
	r.Post("/sync", handlers.TriggerSync(d))
	r.Put("/ui/editing", handlers.SetEditing(d))
	r.Put("/network", handlers.SetNetwork(d))
}

func registerEvents(r chi.Router, d deps.Deps) {
	r.Get("/events", handlers.Events(d))
}
