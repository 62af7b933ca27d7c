package scheduler

import "time"

// State is the autosync state machine position.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingDebounce State = "awaiting_debounce"
	StateSyncing          State = "syncing"
	StateError            State = "error"
)

// Status messages surfaced to the UI.
const (
	MsgSynced        = "All changes synced"
	MsgPending       = "Changes pending"
	MsgSyncing       = "Syncing..."
	MsgOffline       = "Offline: changes will sync when the connection returns"
	MsgProtective    = "Sync paused: local bookmarks are empty, cloud data was left untouched"
	MsgEditing       = "Waiting for the open editor to close"
	MsgDisabled      = "Auto-sync is disabled"
	MsgNotLoggedIn   = "Sign in with a verified account to sync"
	MsgSyncFailedFmt = "Sync failed: %s"
)

// SyncState is the observable status of one autosync session. It is reset
// whenever the active user changes.
type SyncState struct {
	State               State     `json:"state"`
	LastSyncFingerprint string    `json:"lastSyncFingerprint,omitempty"`
	PendingChanges      int       `json:"pendingChanges"`
	SyncInProgress      bool      `json:"syncInProgress"`
	SyncError           string    `json:"syncError,omitempty"`
	LastSyncTime        time.Time `json:"lastSyncTime,omitempty"`
	IsOnline            bool      `json:"isOnline"`
	StatusMessage       string    `json:"statusMessage,omitempty"`
	AutoSyncEnabled     bool      `json:"autoSyncEnabled"`
	IntervalSeconds     int       `json:"autoSyncIntervalSeconds"`
}
