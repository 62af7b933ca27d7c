package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the sync subsystem.
var (
	// ErrNotEligible means there is no logged-in, verified user.
	ErrNotEligible = errors.New("no verified user")
	// ErrOffline means the device reports no network.
	ErrOffline = errors.New("device is offline")
	// ErrInvalidLocalData means the local collection holds no valid
	// record and pushing it would wipe the cloud copy.
	ErrInvalidLocalData = errors.New("local bookmark collection is empty or invalid")
	// ErrMalformedPush means a change notification failed validation.
	ErrMalformedPush = errors.New("malformed remote push")
	// ErrSyncInProgress means a push is already in flight.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNotInitialized means the session has not finished bootstrap, so
	// the local state may not include the cloud copy yet.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrRecordNotFound is returned by mutation intents on unknown ids.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidRecord is returned when a record misses id, name or url.
	ErrInvalidRecord = errors.New("record requires name and url")
)

// TransportError wraps a failure of the remote backend.
type TransportError struct {
	Op     string // "read" | "write" | "subscribe"
	UserID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s for user %s: %v", e.Op, e.UserID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
