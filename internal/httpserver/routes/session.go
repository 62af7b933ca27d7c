package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/handlers"
)

func init() { Register(registerSession) }

func registerSession(r chi.Router, d deps.Deps) {
	r.Get("/session", handlers.SessionStatus(d))
	r.Post("/session", handlers.SignIn(d))
	r.Delete("/session", handlers.SignOut(d))

	r.Get("/settings", handlers.GetSettings(d))
	r.Put("/settings", handlers.UpdateSettings(d))
}
