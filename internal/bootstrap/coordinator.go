// Package bootstrap decides, once per session, how the local working set
// and the cloud copy are reconciled.
package bootstrap

import (
	"sort"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/hometab/internal/cloud"
	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

// CloudView is the read side of the cloud loader.
type CloudView interface {
	Snapshot() (cloud.Snapshot, bool)
	InitialLoadDone() bool
}

// WorkingSet is the local state the merge result is written back to.
type WorkingSet interface {
	Snapshot() ([]domain.BookmarkRecord, domain.Settings)
	Replace(records []domain.BookmarkRecord, settings domain.Settings)
}

// Outcome is the result of one Evaluate call.
type Outcome string

const (
	// OutcomeLocalOnly: no verified user, local data is used as is.
	OutcomeLocalOnly Outcome = "local_only"
	// OutcomePending: verified user, cloud copy not loaded yet.
	OutcomePending Outcome = "pending"
	// OutcomeNoop: same cloud and local ids as the last evaluation.
	OutcomeNoop Outcome = "noop"
	// OutcomeMerged: the session's single merge ran.
	OutcomeMerged Outcome = "merged"
	// OutcomeInformative: the cloud changed after the merge; nothing is
	// merged until the next explicit sync.
	OutcomeInformative Outcome = "informative"
)

// InitializedPayload is published with events.Initialized.
type InitializedPayload struct {
	Outcome       Outcome `json:"outcome"`
	RemoteMissing bool    `json:"remoteMissing"`
	Records       int     `json:"records"`
}

// Coordinator runs the bootstrap state machine over (user, verified,
// cloud loaded, already initialized).
type Coordinator struct {
	cloud  CloudView
	ws     WorkingSet
	bus    *events.Bus
	logger logger.Logger

	mu          sync.Mutex
	user        *domain.User
	initialized bool
	merged      bool
	merging     bool
	epoch       uint64 // bumped on every session change
	lastKey     string
}

func New(cv CloudView, ws WorkingSet, bus *events.Bus, log logger.Logger) *Coordinator {
	return &Coordinator{cloud: cv, ws: ws, bus: bus, logger: log}
}

// SetUser binds the coordinator to u. A different user id or a change of
// eligibility starts a new session.
func (c *Coordinator) SetUser(u *domain.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sameID := c.user != nil && u != nil && c.user.ID == u.ID
	if sameID && c.user.Eligible() == u.Eligible() {
		return
	}
	c.epoch++
	c.initialized = false
	c.merged = false
	c.merging = false
	c.lastKey = ""
	c.user = nil
	if u != nil {
		cp := *u
		c.user = &cp
	}
}

// Initialized reports whether the working set is ready for this session.
func (c *Coordinator) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Merged reports whether the session's merge has run.
func (c *Coordinator) Merged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.merged
}

// Evaluate advances the state machine. It is called on user changes and
// on every cloud update.
func (c *Coordinator) Evaluate() Outcome {
	c.mu.Lock()

	if !c.user.Eligible() {
		first := !c.initialized
		c.initialized = true
		c.mu.Unlock()
		if first {
			records, _ := c.ws.Snapshot()
			c.logger.Debug("bootstrap using local data only", logger.Int("records", len(records)))
			c.publish("", InitializedPayload{Outcome: OutcomeLocalOnly, Records: len(records)})
		}
		return OutcomeLocalOnly
	}
	userID := c.user.ID
	if c.merging {
		c.mu.Unlock()
		return OutcomePending
	}

	snap, ok := c.cloud.Snapshot()
	if !c.cloud.InitialLoadDone() || !ok || snap.UserID != userID {
		c.mu.Unlock()
		return OutcomePending
	}

	localRecords, localSettings := c.ws.Snapshot()
	key := identityKey(userID, snap.Records, localRecords)
	if key == c.lastKey {
		c.initialized = true
		c.mu.Unlock()
		return OutcomeNoop
	}
	c.lastKey = key

	if c.merged {
		c.mu.Unlock()
		c.logger.Debug("cloud update after merge left to the next sync",
			logger.String("user_id", userID),
			logger.Int("cloud_records", len(snap.Records)))
		return OutcomeInformative
	}

	c.merging = true
	epoch := c.epoch
	c.mu.Unlock()

	// Replace runs workspace observers, so the lock is not held here.
	records := domain.MergeBookmarks(localRecords, snap.Records)
	settings := domain.MergeSettings(localSettings, snap.Settings)
	c.ws.Replace(records, settings)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("session changed during bootstrap merge", logger.String("user_id", userID))
		return OutcomePending
	}
	c.merging = false
	// The merged set becomes the new local side of the identity key, so a
	// replayed identical cloud update is a no-op.
	c.lastKey = identityKey(userID, snap.Records, records)
	c.merged = true
	c.initialized = true
	c.mu.Unlock()

	c.logger.Info("bootstrap merge complete",
		logger.String("user_id", userID),
		logger.Int("local", len(localRecords)),
		logger.Int("cloud", len(snap.Records)),
		logger.Int("merged", len(records)),
		logger.Bool("remote_missing", !snap.Exists))
	c.publish(userID, InitializedPayload{
		Outcome:       OutcomeMerged,
		RemoteMissing: !snap.Exists,
		Records:       len(records),
	})
	return OutcomeMerged
}

func (c *Coordinator) publish(userID string, payload InitializedPayload) {
	if c.bus != nil {
		c.bus.Publish(events.Initialized, userID, payload)
	}
}

// identityKey identifies a (user, cloud ids, local ids) combination.
func identityKey(userID string, cloudRecords, localRecords []domain.BookmarkRecord) string {
	var b strings.Builder
	b.WriteString(userID)
	b.WriteString("|c:")
	b.WriteString(strings.Join(sortedIDs(cloudRecords), ","))
	b.WriteString("|l:")
	b.WriteString(strings.Join(sortedIDs(localRecords), ","))
	return b.String()
}

func sortedIDs(records []domain.BookmarkRecord) []string {
	ids := domain.RecordIDs(records)
	sort.Strings(ids)
	return ids
}
