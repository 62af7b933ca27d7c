package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrSnakeDoc/hometab/internal/clock"
	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

// Source supplies the current syncable state. Implementations must return
// copies and must not call back into the scheduler.
type Source interface {
	Snapshot() ([]domain.BookmarkRecord, domain.Settings)
}

// Writer pushes a whole document to the remote store.
type Writer interface {
	WriteRemote(ctx context.Context, userID string, doc domain.Document) error
}

// FingerprintSink persists the last synced fingerprint between sessions.
type FingerprintSink interface {
	SaveFingerprint(userID, fingerprint string) error
}

// Config holds the autosync tuning knobs.
type Config struct {
	Enabled           bool
	Interval          time.Duration // debounce window, clamped to [3s,60s]
	DeleteDebounce    time.Duration // debounce after a record-count decrease (ex: 3s)
	EditingRetryDelay time.Duration // re-check delay while an editor is open (ex: 5s)
	Retry             RetryPolicy   // nil means NoRetry
	Origin            string        // device id stamped into pushed documents
	Sink              FingerprintSink
}

// Autosync decides when local state is pushed to the remote store.
//
// Every qualifying change (re)starts a debounce timer. When the timer
// fires the guards are checked and, if they pass, a single push runs.
// Changes arriving during a push are picked up by re-comparing the
// fingerprint once the push resolves.
type Autosync struct {
	cfg    Config
	source Source
	writer Writer
	clock  clock.Clock
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	user        *domain.User
	seeded      bool
	state       SyncState
	lastCount   int
	timer       clock.Timer
	gen         uint64 // invalidates superseded timers
	epoch       uint64 // invalidates pushes started for a previous user
	deletion    bool   // pending change removed records, use the short debounce
	deletedMid  bool   // a deletion happened while a push was in flight
	mustWrite   bool   // pending push writes even when the fingerprint is unchanged
	userDeleted bool   // an explicit deletion is pending, an empty push is allowed
	deleteSeq   uint64
	editing     bool
	attempts    int
	stopped     bool
	onStatus    []func(SyncState)
	statusDirty bool
}

// syncJob is a push prepared under the lock and executed outside it.
type syncJob struct {
	epoch     uint64
	userID    string
	doc       domain.Document
	fp        string
	manual    bool
	deleteSeq uint64
}

// NewAutosync creates a scheduler. The device starts online.
func NewAutosync(cfg Config, source Source, writer Writer, clk clock.Clock, log logger.Logger) *Autosync {
	if cfg.Retry == nil {
		cfg.Retry = NoRetry{}
	}
	if cfg.DeleteDebounce <= 0 {
		cfg.DeleteDebounce = 3 * time.Second
	}
	if cfg.EditingRetryDelay <= 0 {
		cfg.EditingRetryDelay = 5 * time.Second
	}
	cfg.Interval = clampInterval(cfg.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	a := &Autosync{
		cfg:    cfg,
		source: source,
		writer: writer,
		clock:  clk,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	a.state = a.freshState()
	return a
}

func clampInterval(d time.Duration) time.Duration {
	secs := int(d / time.Second)
	if d <= 0 {
		secs = domain.DefaultAutoSyncInterval
	}
	return time.Duration(domain.ClampAutoSyncInterval(secs)) * time.Second
}

func (a *Autosync) freshState() SyncState {
	return SyncState{
		State:           StateIdle,
		IsOnline:        true,
		AutoSyncEnabled: a.cfg.Enabled,
		IntervalSeconds: int(a.cfg.Interval / time.Second),
	}
}

// OnStatus registers an observer called with a copy of the state after
// every change. Observers run outside the scheduler lock.
func (a *Autosync) OnStatus(fn func(SyncState)) {
	a.mu.Lock()
	a.onStatus = append(a.onStatus, fn)
	a.mu.Unlock()
}

// Status returns a copy of the current sync state.
func (a *Autosync) Status() SyncState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetUser binds the scheduler to a user. Switching to a different user (or
// to nil on logout) cancels timers and resets the sync state.
func (a *Autosync) SetUser(u *domain.User) {
	a.mu.Lock()
	if a.user != nil && u != nil && a.user.ID == u.ID {
		cp := *u
		a.user = &cp
		a.mu.Unlock()
		return
	}

	a.cancelTimerLocked()
	a.epoch++
	online := a.state.IsOnline
	a.state = a.freshState()
	a.state.IsOnline = online
	a.seeded = false
	a.lastCount = 0
	a.deletion = false
	a.deletedMid = false
	a.mustWrite = false
	a.userDeleted = false
	a.attempts = 0
	a.user = nil
	if u != nil {
		cp := *u
		a.user = &cp
	} else {
		a.state.StatusMessage = MsgNotLoggedIn
	}
	a.statusDirty = true
	a.mu.Unlock()

	a.flushStatus()
}

// Seed records the state observed right after bootstrap as already synced,
// so logging in never pushes by itself. When the remote document did not
// exist yet and local data is valid, one upload is scheduled after the
// normal debounce.
func (a *Autosync) Seed(remoteMissing bool) {
	records, settings := a.source.Snapshot()
	fp := domain.ComputeFingerprint(records, settings)

	a.mu.Lock()
	if a.user == nil || !a.user.Eligible() || a.stopped {
		a.mu.Unlock()
		return
	}
	a.seeded = true
	a.userDeleted = false
	a.lastCount = len(records)
	a.state.LastSyncFingerprint = fp
	a.state.PendingChanges = 0
	a.state.State = StateIdle
	a.state.StatusMessage = MsgSynced

	sink := a.cfg.Sink
	userID := a.user.ID
	a.logger.Info("autosync seeded",
		logger.String("user_id", a.user.ID),
		logger.String("fingerprint", short(fp)),
		logger.Int("records", len(records)),
		logger.Bool("remote_missing", remoteMissing))

	if remoteMissing && domain.CountValid(records) > 0 {
		a.mustWrite = true
		a.state.PendingChanges = 1
		a.state.StatusMessage = MsgPending
		if a.cfg.Enabled {
			a.armLocked(a.cfg.Interval)
			a.state.State = StateAwaitingDebounce
		}
	}
	a.statusDirty = true
	a.mu.Unlock()

	// The bootstrapped state matches the remote document.
	if !remoteMissing && sink != nil {
		if err := sink.SaveFingerprint(userID, fp); err != nil {
			a.logger.Warn("failed to persist sync fingerprint", logger.Error(err))
		}
	}
	a.flushStatus()
}

// NotifyChange tells the scheduler the local state may have changed.
// Changes before seeding are ignored.
func (a *Autosync) NotifyChange() {
	records, settings := a.source.Snapshot()
	fp := domain.ComputeFingerprint(records, settings)

	a.mu.Lock()
	a.noteChangeLocked(fp, len(records))
	a.mu.Unlock()

	a.flushStatus()
}

// NotifyDeletion is NotifyChange for records the user deleted explicitly.
// The push it schedules may leave the remote collection empty, which the
// empty-data guard otherwise refuses.
func (a *Autosync) NotifyDeletion() {
	records, settings := a.source.Snapshot()
	fp := domain.ComputeFingerprint(records, settings)

	a.mu.Lock()
	if a.seeded && a.user != nil && !a.stopped {
		a.userDeleted = true
		a.deleteSeq++
	}
	a.noteChangeLocked(fp, len(records))
	a.mu.Unlock()

	a.flushStatus()
}

func (a *Autosync) noteChangeLocked(fp string, count int) {
	if a.stopped || !a.seeded || a.user == nil {
		return
	}

	deletion := count < a.lastCount
	a.lastCount = count

	if a.state.SyncInProgress {
		// Re-compared once the push resolves.
		if deletion {
			a.deletedMid = true
		}
		return
	}

	if fp == a.state.LastSyncFingerprint && !a.mustWrite {
		// Back to the synced state, e.g. an edit was undone.
		a.deletion = false
		a.userDeleted = false
		if a.state.State != StateIdle || a.state.PendingChanges > 0 {
			a.cancelTimerLocked()
			a.state.PendingChanges = 0
			a.state.State = StateIdle
			a.state.SyncError = ""
			a.state.StatusMessage = MsgSynced
			a.statusDirty = true
		}
		return
	}

	a.state.PendingChanges++
	a.statusDirty = true
	if deletion {
		a.deletion = true
	}

	if !a.cfg.Enabled {
		a.state.StatusMessage = MsgDisabled
		return
	}

	delay := a.cfg.Interval
	if a.deletion {
		delay = a.cfg.DeleteDebounce
	}
	a.logger.Debug("autosync change detected",
		logger.String("user_id", a.user.ID),
		logger.String("fingerprint", short(fp)),
		logger.Bool("deletion", deletion),
		logger.Duration("delay", delay))
	a.armLocked(delay)
	a.state.State = StateAwaitingDebounce
	a.state.StatusMessage = MsgPending
}

// SetOnline records network availability. Reconnecting with pending
// changes schedules a push.
func (a *Autosync) SetOnline(online bool) {
	a.mu.Lock()
	was := a.state.IsOnline
	a.state.IsOnline = online
	if was != online {
		a.statusDirty = true
		if !online {
			a.state.StatusMessage = MsgOffline
		} else if a.seeded && a.state.PendingChanges > 0 && a.cfg.Enabled && !a.state.SyncInProgress {
			a.logger.Info("back online, rescheduling pending sync",
				logger.Int("pending", a.state.PendingChanges))
			a.armLocked(a.cfg.Interval)
			a.state.State = StateAwaitingDebounce
			a.state.StatusMessage = MsgPending
		}
	}
	a.mu.Unlock()

	a.flushStatus()
}

// SetEditing records whether an editing surface is open in the UI.
func (a *Autosync) SetEditing(open bool) {
	a.mu.Lock()
	a.editing = open
	a.mu.Unlock()
}

// SetConfig applies the user-facing autosync settings at runtime.
func (a *Autosync) SetConfig(enabled bool, intervalSeconds int) {
	a.mu.Lock()
	interval := clampInterval(time.Duration(intervalSeconds) * time.Second)
	changed := a.cfg.Enabled != enabled || a.cfg.Interval != interval
	a.cfg.Enabled = enabled
	a.cfg.Interval = interval
	a.state.AutoSyncEnabled = enabled
	a.state.IntervalSeconds = int(interval / time.Second)

	if changed {
		a.statusDirty = true
		switch {
		case !enabled:
			a.cancelTimerLocked()
			if a.state.State == StateAwaitingDebounce {
				a.state.State = StateIdle
			}
			if a.state.PendingChanges > 0 {
				a.state.StatusMessage = MsgDisabled
			}
		case a.seeded && a.state.PendingChanges > 0 && !a.state.SyncInProgress:
			a.armLocked(a.cfg.Interval)
			a.state.State = StateAwaitingDebounce
			a.state.StatusMessage = MsgPending
		}
	}
	a.mu.Unlock()

	a.flushStatus()
}

// TriggerSync pushes immediately. It skips the debounce wait and the
// editing guard; with force it also skips the empty-data guard. Login and
// network guards still apply and their errors are returned.
func (a *Autosync) TriggerSync(ctx context.Context, force bool) error {
	a.mu.Lock()
	if a.state.SyncInProgress {
		a.mu.Unlock()
		return domain.ErrSyncInProgress
	}
	job, err := a.prepareLocked(true, force)
	a.mu.Unlock()
	a.flushStatus()
	if err != nil {
		return err
	}
	return a.execute(ctx, job)
}

// Stop cancels pending timers and any in-flight push context.
func (a *Autosync) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.cancelTimerLocked()
	a.mu.Unlock()
	a.cancel()
}

// armLocked (re)starts the timer. Only the latest timer fires. Callers
// set the resulting state.
func (a *Autosync) armLocked(delay time.Duration) {
	a.cancelTimerLocked()
	gen := a.gen
	a.timer = a.clock.AfterFunc(delay, func() { a.fire(gen) })
	a.statusDirty = true
}

func (a *Autosync) cancelTimerLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// fire runs when a debounce, editing-retry or backoff timer elapses.
func (a *Autosync) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.stopped {
		a.mu.Unlock()
		return
	}
	a.timer = nil

	if a.editing {
		a.logger.Debug("editor open, delaying sync",
			logger.Duration("retry_in", a.cfg.EditingRetryDelay))
		a.state.StatusMessage = MsgEditing
		a.armLocked(a.cfg.EditingRetryDelay)
		a.mu.Unlock()
		a.flushStatus()
		return
	}

	job, err := a.prepareLocked(false, a.userDeleted)
	a.mu.Unlock()
	a.flushStatus()
	if err != nil {
		return
	}
	_ = a.execute(a.ctx, job)
}

// prepareLocked applies the guards and, when they pass, moves to Syncing
// and captures the document to push. Guard failures only update status.
func (a *Autosync) prepareLocked(manual, force bool) (syncJob, error) {
	a.statusDirty = true

	if a.user == nil || !a.user.Eligible() {
		if a.state.State == StateAwaitingDebounce {
			a.state.State = StateIdle
		}
		a.state.StatusMessage = MsgNotLoggedIn
		return syncJob{}, domain.ErrNotEligible
	}
	if !a.seeded {
		return syncJob{}, domain.ErrNotInitialized
	}
	if !a.state.IsOnline {
		if a.state.State == StateAwaitingDebounce {
			a.state.State = StateIdle
		}
		a.state.StatusMessage = MsgOffline
		a.logger.Warn("sync skipped, device offline",
			logger.String("user_id", a.user.ID),
			logger.Int("pending", a.state.PendingChanges))
		return syncJob{}, domain.ErrOffline
	}

	records, settings := a.source.Snapshot()
	valid := domain.CountValid(records)
	if !force && valid == 0 {
		if a.state.State == StateAwaitingDebounce {
			a.state.State = StateIdle
		}
		a.state.StatusMessage = MsgProtective
		a.logger.Warn("sync suppressed, local collection has no valid record",
			logger.String("user_id", a.user.ID),
			logger.Int("records", len(records)))
		return syncJob{}, domain.ErrInvalidLocalData
	}
	if valid == 0 {
		a.logger.Info("pushing empty collection",
			logger.String("user_id", a.user.ID),
			logger.Bool("manual", manual))
	}

	fp := domain.ComputeFingerprint(records, settings)
	if !manual && !a.mustWrite && fp == a.state.LastSyncFingerprint {
		a.state.State = StateIdle
		a.state.PendingChanges = 0
		a.state.SyncError = ""
		a.state.StatusMessage = MsgSynced
		a.deletion = false
		return syncJob{}, errNothingToSync
	}

	a.cancelTimerLocked()
	a.state.State = StateSyncing
	a.state.SyncInProgress = true
	a.state.StatusMessage = MsgSyncing

	return syncJob{
		epoch:  a.epoch,
		userID: a.user.ID,
		doc: domain.Document{
			Records:   records,
			Settings:  settings,
			UpdatedAt: a.clock.Now(),
			Origin:    a.cfg.Origin,
		},
		fp:        fp,
		manual:    manual,
		deleteSeq: a.deleteSeq,
	}, nil
}

var errNothingToSync = errors.New("nothing to sync")

// execute performs the push outside the lock and records the outcome.
func (a *Autosync) execute(ctx context.Context, job syncJob) error {
	a.logger.Info("autosync push started",
		logger.String("user_id", job.userID),
		logger.String("fingerprint", short(job.fp)),
		logger.Int("records", len(job.doc.Records)),
		logger.Bool("manual", job.manual))

	err := a.writer.WriteRemote(ctx, job.userID, job.doc)

	a.mu.Lock()
	if job.epoch != a.epoch {
		// The user changed while the push was in flight.
		a.mu.Unlock()
		return err
	}
	a.state.SyncInProgress = false
	a.statusDirty = true

	if err != nil {
		a.state.State = StateError
		a.state.SyncError = err.Error()
		a.state.StatusMessage = fmt.Sprintf(MsgSyncFailedFmt, err.Error())
		if a.state.PendingChanges == 0 {
			a.state.PendingChanges = 1
		}
		a.deletion = a.deletion || a.deletedMid
		a.deletedMid = false
		a.logger.Error("autosync push failed",
			logger.String("user_id", job.userID),
			logger.Error(err))

		a.attempts++
		if delay, ok := a.cfg.Retry.NextDelay(a.attempts); ok && !a.stopped {
			a.logger.Info("autosync retry scheduled",
				logger.Int("attempt", a.attempts),
				logger.Duration("delay", delay))
			a.armLocked(delay)
		}
		a.mu.Unlock()
		a.flushStatus()
		return err
	}

	a.state.State = StateIdle
	a.state.LastSyncFingerprint = job.fp
	a.state.LastSyncTime = a.clock.Now()
	a.state.SyncError = ""
	a.state.PendingChanges = 0
	a.state.StatusMessage = MsgSynced
	a.attempts = 0
	a.deletion = a.deletedMid
	a.deletedMid = false
	a.mustWrite = false
	if a.deleteSeq == job.deleteSeq {
		a.userDeleted = false
	}
	sink := a.cfg.Sink
	a.logger.Info("autosync push succeeded",
		logger.String("user_id", job.userID),
		logger.String("fingerprint", short(job.fp)))
	a.mu.Unlock()

	if sink != nil {
		if serr := sink.SaveFingerprint(job.userID, job.fp); serr != nil {
			a.logger.Warn("failed to persist sync fingerprint", logger.Error(serr))
		}
	}

	// Pick up anything that changed while the push was in flight.
	a.NotifyChange()
	return nil
}

func (a *Autosync) flushStatus() {
	a.mu.Lock()
	if !a.statusDirty {
		a.mu.Unlock()
		return
	}
	a.statusDirty = false
	st := a.state
	observers := slices.Clone(a.onStatus)
	a.mu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
