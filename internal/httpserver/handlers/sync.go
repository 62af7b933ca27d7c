package handlers

import (
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

type toggleRequest struct {
	Open   *bool `json:"open,omitempty"`
	Online *bool `json:"online,omitempty"`
}

func SyncStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Session.Status().Sync)
	}
}

// TriggerSync is the explicit push, e.g. on closing the settings panel.
// force defaults to true and skips the empty-data guard.
func TriggerSync(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force := true
		if v := r.URL.Query().Get("force"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				badRequest(w, "force must be a boolean")
				return
			}
			force = b
		}

		if err := d.Session.Sync(r.Context(), force); err != nil {
			d.Logger.Info("manual sync rejected", logger.Bool("force", force), logger.Error(err))
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Session.Status().Sync)
	}
}

// SetEditing records whether an editing surface is open: {"open": true}.
func SetEditing(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Open == nil {
			badRequest(w, "open is required")
			return
		}
		d.Session.SetEditing(*req.Open)
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetNetwork records the browser's connectivity: {"online": false}.
func SetNetwork(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Online == nil {
			badRequest(w, "online is required")
			return
		}
		d.Session.SetOnline(*req.Online)
		writeJSON(w, http.StatusOK, d.Session.Status().Sync)
	}
}
