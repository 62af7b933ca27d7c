package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/scheduler"
)

type componentStatus struct {
	OK            bool   `json:"ok"`
	RecordsLoaded *int   `json:"records_loaded,omitempty"`
	LastChange    string `json:"last_change,omitempty"`
	LastSync      string `json:"last_sync,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Impact        string `json:"impact,omitempty"`
	Error         string `json:"error,omitempty"`
}

type infraResponse struct {
	SyncMode   string                     `json:"sync_mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the working set, the remote store and the
// autosync scheduler.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := d.Workspace.Count()
		lastChange := "never"
		if t := d.Workspace.LastChange(); !t.IsZero() {
			lastChange = t.Format("2006-01-02 15:04:05")
		}

		st := d.Session.Status()
		components := map[string]componentStatus{
			"workspace": {
				OK:            true,
				RecordsLoaded: &count,
				LastChange:    lastChange,
			},
			"remote":    checkRemote(r.Context(), d),
			"autosync":  autosyncStatus(st.Sync),
			"bootstrap": {OK: st.Initialized || st.User == nil, Mode: bootstrapMode(st.Initialized, st.Merged, st.Loading)},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			SyncMode:   determineSyncMode(components, st.User != nil),
			Components: components,
		})
	}
}

func determineSyncMode(components map[string]componentStatus, signedIn bool) string {
	if !signedIn {
		return "local-only"
	}
	if remote, ok := components["remote"]; ok && !remote.OK {
		return "degraded" // edits stay local until the store is back
	}
	if as, ok := components["autosync"]; ok && !as.OK {
		return "degraded"
	}
	return "synced"
}

func checkRemote(parent context.Context, d deps.Deps) componentStatus {
	if d.Remote == nil {
		return componentStatus{OK: false, Mode: "disabled", Impact: "sync-disabled", Error: "store not configured"}
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := d.Remote.Ping(ctx); err != nil {
		return componentStatus{OK: false, Mode: "degraded", Impact: "sync-paused", Error: "timeout"}
	}
	return componentStatus{OK: true, Mode: "optimal", Impact: "sync-enabled"}
}

func autosyncStatus(st scheduler.SyncState) componentStatus {
	cs := componentStatus{
		OK:   st.State != scheduler.StateError,
		Mode: string(st.State),
	}
	if !st.LastSyncTime.IsZero() {
		cs.LastSync = st.LastSyncTime.Format("2006-01-02 15:04:05")
	}
	if !st.AutoSyncEnabled {
		cs.Impact = "manual-only"
	}
	cs.Error = st.SyncError
	return cs
}

func bootstrapMode(initialized, merged, loading bool) string {
	switch {
	case merged:
		return "merged"
	case initialized:
		return "local"
	case loading:
		return "loading"
	default:
		return "pending"
	}
}
