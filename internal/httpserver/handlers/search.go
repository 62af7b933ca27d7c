package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

const defaultSearchLimit = 10

// Search ranks the working set against the launcher query.
// With go=1 the best match is opened: its visit is recorded and the
// client is redirected to it.
func Search(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := strings.TrimSpace(q.Get("q"))
		if query == "" {
			badRequest(w, "q is required")
			return
		}

		limit := defaultSearchLimit
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				badRequest(w, "limit must be a positive integer")
				return
			}
			limit = n
		}

		candidates := d.Workspace.Search(query)
		d.Logger.Debug("search request",
			logger.String("query", query),
			logger.Int("matches", len(candidates)))

		if q.Get("go") == "1" {
			if len(candidates) == 0 {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "no bookmark matches " + query, Code: "not_found"})
				return
			}
			best := candidates[0].Record
			if _, err := d.Workspace.Visit(best.ID); err != nil {
				d.Logger.Warn("failed to record visit", logger.String("id", best.ID), logger.Error(err))
			}
			http.Redirect(w, r, best.URL, http.StatusFound)
			return
		}

		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		writeJSON(w, http.StatusOK, candidates)
	}
}
