package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

type importResponse struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

// Import re-reads the configured gethomepage files and adds the records
// whose URL is not in the working set yet.
func Import(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Homepage == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no homepage source configured", Code: "not_configured"})
			return
		}

		added, err := d.Homepage.Reload()
		if err != nil {
			d.Logger.Error("manual homepage import failed",
				logger.String("remote_ip", r.RemoteAddr),
				logger.Error(err))
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "import_failed"})
			return
		}
		writeJSON(w, http.StatusOK, importResponse{Added: added, Total: d.Workspace.Count()})
	}
}
