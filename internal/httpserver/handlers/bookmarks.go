package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/workspace"
)

type createBookmarkRequest struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Favicon string   `json:"favicon,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Note    string   `json:"note,omitempty"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// ListBookmarks returns the working set in display order, or by visit
// count with ?sort=visits.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("sort") {
		case "", "order":
			writeJSON(w, http.StatusOK, d.Workspace.Records())
		case "visits":
			writeJSON(w, http.StatusOK, d.Workspace.MostVisited())
		default:
			badRequest(w, "sort must be order or visits")
		}
	}
}

// GetBookmark returns one record.
func GetBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := d.Workspace.Get(chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "record not found", Code: "not_found"})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// CreateBookmark adds a record with a fresh id.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBookmarkRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		rec, err := d.Workspace.Create(domain.BookmarkRecord{
			Name:    req.Name,
			URL:     req.URL,
			Favicon: req.Favicon,
			Tags:    req.Tags,
			Note:    req.Note,
		})
		if err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// UpdateBookmark applies a partial update.
func UpdateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch workspace.RecordPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		rec, err := d.Workspace.Update(chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// DeleteBookmark removes a record.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Workspace.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, d, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// VisitBookmark records a launch of the bookmark.
func VisitBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := d.Workspace.Visit(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// ReorderBookmarks moves the given ids to the front in order.
func ReorderBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reorderRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.IDs) == 0 {
			badRequest(w, "ids is required")
			return
		}
		if err := d.Workspace.Reorder(req.IDs); err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Workspace.Records())
	}
}
