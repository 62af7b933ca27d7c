package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

// Scope selects the router group a registrar is mounted on.
type Scope int

const (
	// ScopeAPI routes live under /api behind the host, rate and timeout guards.
	ScopeAPI Scope = iota
	// ScopeStream routes live under /api without the request timeout.
	ScopeStream
	// ScopeRoot routes are mounted at the server root (probes).
	ScopeRoot
)

type entry struct {
	scope Scope
	reg   Registrar
	mws   []Middleware
}

var registry []entry

// Register an API registrar with optional per-route middlewares.
func Register(reg Registrar, mws ...Middleware) {
	RegisterIn(ScopeAPI, reg, mws...)
}

// RegisterIn registers a registrar for a specific scope.
func RegisterIn(scope Scope, reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{scope: scope, reg: reg, mws: mws})
}

// RegisterAll mounts every registrar of the given scope. Called from server.New().
func RegisterAll(r chi.Router, scope Scope, d deps.Deps) {
	for _, e := range registry {
		if e.scope != scope {
			continue
		}
		if len(e.mws) == 0 {
			e.reg(r, d)
			continue
		}
		sub := r.With(e.mws...) // apply per-route middlewares
		e.reg(sub, d)
	}
}
