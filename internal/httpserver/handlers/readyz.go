package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Remote string `json:"remote"`
}

// Readyz reports ready once the remote store answers a ping.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if d.Remote != nil {
			if err := d.Remote.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Remote: "unreachable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true, Remote: "ok"})
	}
}
