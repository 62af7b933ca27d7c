package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

// SessionStatus returns the signed-in user and sync status.
func SessionStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Session.Status())
	}
}

// SignIn receives the auth collaborator's projection {id, emailVerified}
// and starts the session. A failed cloud load still signs the user in;
// the session stays pending and the error is reported.
func SignIn(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u domain.User
		if !decodeJSON(w, r, &u) {
			return
		}
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			badRequest(w, "id is required")
			return
		}

		if err := d.Session.SignIn(r.Context(), u); err != nil {
			d.Logger.Warn("sign-in cloud load failed",
				logger.String("user_id", u.ID),
				logger.Error(err))
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Session.Status())
	}
}

// SignOut ends the session.
func SignOut(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Session.SignOut()
		w.WriteHeader(http.StatusNoContent)
	}
}
