// Package store holds the remote document backends. The sync subsystem
// treats every backend as an opaque per-user document cell plus a change
// feed.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/hometab/internal/domain"
)

// RemoteStore is a whole-document store keyed by user id.
type RemoteStore interface {
	// ReadRemote returns nil, nil when the user has no document yet.
	ReadRemote(ctx context.Context, userID string) (*domain.Document, error)
	// WriteRemote replaces the user's document and announces the change.
	WriteRemote(ctx context.Context, userID string, doc domain.Document) error
	// Subscribe streams raw change notifications (JSON encoded
	// domain.ChangeNotification) until ctx is cancelled.
	Subscribe(ctx context.Context, userID string) (<-chan []byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryRemote is an in-process RemoteStore used by tests and memory://.
type MemoryRemote struct {
	mu     sync.Mutex
	docs   map[string][]byte
	subs   map[string][]chan []byte
	failOn error
}

// NewMemoryRemote creates an empty in-memory backend.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		docs: make(map[string][]byte),
		subs: make(map[string][]chan []byte),
	}
}

// FailWith makes every read and write fail with err until called with nil.
func (m *MemoryRemote) FailWith(err error) {
	m.mu.Lock()
	m.failOn = err
	m.mu.Unlock()
}

func (m *MemoryRemote) ReadRemote(_ context.Context, userID string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return nil, &domain.TransportError{Op: "read", UserID: userID, Err: m.failOn}
	}
	data, ok := m.docs[userID]
	if !ok {
		return nil, nil
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

func (m *MemoryRemote) WriteRemote(_ context.Context, userID string, doc domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	note, err := json.Marshal(domain.NotificationFor(userID, doc))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return &domain.TransportError{Op: "write", UserID: userID, Err: m.failOn}
	}
	m.docs[userID] = data
	for _, ch := range m.subs[userID] {
		select {
		case ch <- note:
		default:
			// Slow subscriber; the next full load catches up.
		}
	}
	return nil
}

// Publish delivers a raw notification to the user's subscribers, as
// another device or a misbehaving backend would.
func (m *MemoryRemote) Publish(userID string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[userID] {
		select {
		case ch <- raw:
		default:
		}
	}
}

func (m *MemoryRemote) Subscribe(ctx context.Context, userID string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	m.mu.Lock()
	m.subs[userID] = append(m.subs[userID], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[userID]
		for i, c := range subs {
			if c == ch {
				m.subs[userID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (m *MemoryRemote) Ping(context.Context) error { return nil }

func (m *MemoryRemote) Close() error { return nil }

// Scheme returns the lowercased scheme of a backend DSN.
func Scheme(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("empty remote DSN")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid remote DSN: %w", err)
	}
	return strings.ToLower(parsed.Scheme), nil
}
