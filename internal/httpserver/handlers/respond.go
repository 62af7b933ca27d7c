package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, d deps.Deps, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidRecord):
		status, code = http.StatusUnprocessableEntity, "invalid_record"
	case errors.Is(err, domain.ErrNotEligible):
		status, code = http.StatusUnauthorized, "not_eligible"
	case errors.Is(err, domain.ErrNotInitialized):
		status, code = http.StatusConflict, "not_initialized"
	case errors.Is(err, domain.ErrSyncInProgress):
		status, code = http.StatusConflict, "sync_in_progress"
	case errors.Is(err, domain.ErrOffline):
		status, code = http.StatusServiceUnavailable, "offline"
	case errors.Is(err, domain.ErrInvalidLocalData):
		status, code = http.StatusConflict, "invalid_local_data"
	case domain.IsTransport(err):
		status, code = http.StatusBadGateway, "remote_unavailable"
	}
	if status >= http.StatusInternalServerError {
		d.Logger.Error("request failed", logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
