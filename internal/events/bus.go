// Package events carries in-process notifications between the sync
// components and out to connected browsers.
package events

import (
	"sync"
	"time"
)

// Type names an event kind.
type Type string

const (
	UserSignedIn      Type = "user.signed_in"
	UserSignedOut     Type = "user.signed_out"
	CloudDataUpdated  Type = "cloud.updated"
	Initialized       Type = "bootstrap.initialized"
	SyncStatusChanged Type = "sync.status"
	WorkspaceChanged  Type = "workspace.changed"
)

// Event is a single notification. Payload is one of the component-specific
// types documented next to each publisher, and must be safe to share.
type Event struct {
	Type    Type      `json:"type"`
	UserID  string    `json:"userId,omitempty"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Handler receives events. Handlers run on the publisher's goroutine and
// must not block.
type Handler func(Event)

// Bus is a synchronous observer list. Subscribers are invoked in
// subscription order; Publish returns once every handler has run.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []subscription
	now      func() time.Time
}

type subscription struct {
	id uint64
	fn Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, fn: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.handlers {
				if s.id == id {
					b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers an event to every current subscriber.
func (b *Bus) Publish(t Type, userID string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	for i, s := range b.handlers {
		handlers[i] = s.fn
	}
	b.mu.RUnlock()

	ev := Event{Type: t, UserID: userID, At: b.now(), Payload: payload}
	for _, h := range handlers {
		h(ev)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
