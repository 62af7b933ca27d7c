// Package cloud loads the remote copy of a user's bookmarks and keeps it
// current from the change feed.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Reader fetches a user's document. A missing document is nil, nil.
type Reader interface {
	ReadRemote(ctx context.Context, userID string) (*domain.Document, error)
}

// Subscriber streams raw change notifications for one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan []byte, error)
}

const (
	SourceLoad = "load"
	SourcePush = "push"
)

// Snapshot is the last known cloud copy for the session user. Exists is
// false when the user has no remote document yet.
type Snapshot struct {
	UserID   string                  `json:"userId"`
	Records  []domain.BookmarkRecord `json:"records"`
	Settings domain.Settings         `json:"settings"`
	Exists   bool                    `json:"exists"`
	LoadedAt time.Time               `json:"loadedAt"`
	Source   string                  `json:"source"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	s.Records = domain.CloneRecords(s.Records)
	s.Settings = s.Settings.Clone()
	return s
}

// Loader owns the cloud snapshot for the signed-in user. Loads for the
// same user collapse into one read, and every successful load or accepted
// push publishes events.CloudDataUpdated with a Snapshot payload.
type Loader struct {
	reader Reader
	bus    *events.Bus
	origin string
	logger logger.Logger
	now    func() time.Time
	schema *jsonschema.Schema
	group  singleflight.Group

	mu          sync.RWMutex
	userID      string
	epoch       uint64
	snapshot    *Snapshot
	initialDone bool
	inflight    int
}

// NewLoader creates a loader. origin is this device's id; pushes carrying
// it are our own echoes and are dropped.
func NewLoader(reader Reader, bus *events.Bus, origin string, log logger.Logger) (*Loader, error) {
	schema, err := compilePushSchema()
	if err != nil {
		return nil, err
	}
	return &Loader{
		reader: reader,
		bus:    bus,
		origin: origin,
		logger: log,
		now:    time.Now,
		schema: schema,
	}, nil
}

// Reset binds the loader to userID and forgets everything known about the
// previous user. In-flight loads for the previous binding are discarded
// when they resolve.
func (l *Loader) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userID = userID
	l.epoch++
	l.snapshot = nil
	l.initialDone = false
}

// Load reads the user's document. Overlapping calls for the same user
// share one read and its result.
func (l *Loader) Load(ctx context.Context, user *domain.User) (Snapshot, error) {
	if !user.Eligible() {
		return Snapshot{}, domain.ErrNotEligible
	}

	l.mu.Lock()
	if l.userID != user.ID {
		l.userID = user.ID
		l.epoch++
		l.snapshot = nil
		l.initialDone = false
	}
	epoch := l.epoch
	l.mu.Unlock()

	key := fmt.Sprintf("%s#%d", user.ID, epoch)
	v, err, shared := l.group.Do(key, func() (any, error) {
		return l.load(ctx, user.ID, epoch)
	})
	if err != nil {
		return Snapshot{}, err
	}
	if shared {
		l.logger.Debug("cloud load joined in-flight read", logger.String("user_id", user.ID))
	}
	return v.(Snapshot).Clone(), nil
}

func (l *Loader) load(ctx context.Context, userID string, epoch uint64) (Snapshot, error) {
	l.mu.Lock()
	l.inflight++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.inflight--
		l.mu.Unlock()
	}()

	start := l.now()
	doc, err := l.reader.ReadRemote(ctx, userID)
	if err != nil {
		if !domain.IsTransport(err) {
			err = &domain.TransportError{Op: "read", UserID: userID, Err: err}
		}
		l.logger.Error("cloud load failed", logger.String("user_id", userID), logger.Error(err))
		return Snapshot{}, err
	}

	snap := Snapshot{UserID: userID, LoadedAt: l.now(), Source: SourceLoad}
	if doc != nil {
		snap.Exists = true
		snap.Records = domain.CloneRecords(doc.Records)
		snap.Settings = doc.Settings.Clone()
	}

	l.mu.Lock()
	if l.epoch != epoch {
		l.mu.Unlock()
		l.logger.Debug("discarding cloud load for previous session", logger.String("user_id", userID))
		return snap, nil
	}
	l.store(snap)
	l.initialDone = true
	l.mu.Unlock()

	l.logger.Info("cloud data loaded",
		logger.String("user_id", userID),
		logger.Bool("exists", snap.Exists),
		logger.Int("records", len(snap.Records)),
		logger.Duration("took", l.now().Sub(start)))
	l.bus.Publish(events.CloudDataUpdated, userID, snap.Clone())
	return snap, nil
}

// ApplyPush validates a raw change notification and, if it concerns the
// bound user and the initial load is done, replaces the stored snapshot.
// Malformed payloads are rejected with domain.ErrMalformedPush and leave
// the snapshot untouched.
func (l *Loader) ApplyPush(raw []byte) error {
	if err := validatePush(l.schema, raw); err != nil {
		l.logger.Warn("rejected malformed remote push", logger.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrMalformedPush, err)
	}
	var note domain.ChangeNotification
	if err := json.Unmarshal(raw, &note); err != nil {
		l.logger.Warn("rejected malformed remote push", logger.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrMalformedPush, err)
	}

	l.mu.Lock()
	switch {
	case note.UserID != l.userID:
		l.mu.Unlock()
		return nil
	case l.origin != "" && note.Origin == l.origin:
		l.mu.Unlock()
		l.logger.Debug("ignoring own push echo", logger.String("user_id", note.UserID))
		return nil
	case !l.initialDone:
		// The pending load will read the newer document anyway.
		l.mu.Unlock()
		return nil
	}

	snap := Snapshot{
		UserID:   note.UserID,
		Records:  domain.CloneRecords(note.Records),
		Settings: l.snapshot.Settings.Clone(),
		Exists:   true,
		LoadedAt: l.now(),
		Source:   SourcePush,
	}
	if note.Settings != nil {
		snap.Settings = note.Settings.Clone()
	}
	if snap.Records == nil {
		snap.Records = []domain.BookmarkRecord{}
	}
	l.store(snap)
	l.mu.Unlock()

	l.logger.Info("cloud data updated from push",
		logger.String("user_id", note.UserID),
		logger.String("origin", note.Origin),
		logger.Int("records", len(snap.Records)))
	l.bus.Publish(events.CloudDataUpdated, note.UserID, snap.Clone())
	return nil
}

// Watch subscribes to the user's change feed and applies every push until
// ctx is cancelled or the feed closes.
func (l *Loader) Watch(ctx context.Context, sub Subscriber, userID string) error {
	feed, err := sub.Subscribe(ctx, userID)
	if err != nil {
		if !domain.IsTransport(err) {
			err = &domain.TransportError{Op: "subscribe", UserID: userID, Err: err}
		}
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-feed:
				if !ok {
					l.logger.Debug("change feed closed", logger.String("user_id", userID))
					return
				}
				if err := l.ApplyPush(raw); err != nil && !errors.Is(err, domain.ErrMalformedPush) {
					l.logger.Warn("failed to apply remote push", logger.Error(err))
				}
			}
		}
	}()
	return nil
}

// Snapshot returns the stored cloud copy, if any.
func (l *Loader) Snapshot() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snapshot == nil {
		return Snapshot{}, false
	}
	return l.snapshot.Clone(), true
}

// Loading reports whether a read is in flight.
func (l *Loader) Loading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inflight > 0
}

// InitialLoadDone reports whether the bound user's first load succeeded.
func (l *Loader) InitialLoadDone() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialDone
}

// UserID returns the bound user.
func (l *Loader) UserID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.userID
}

func (l *Loader) store(snap Snapshot) {
	c := snap.Clone()
	l.snapshot = &c
}
