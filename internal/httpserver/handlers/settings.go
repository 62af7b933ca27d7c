package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
)

func GetSettings(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Workspace.Settings())
	}
}

// UpdateSettings overlays the fields present in the body. Ranged values
// are clamped, autoSyncIntervalSeconds into [3,60].
func UpdateSettings(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.Settings
		if !decodeJSON(w, r, &patch) {
			return
		}
		writeJSON(w, http.StatusOK, d.Workspace.UpdateSettings(patch))
	}
}
