// Package session binds the signed-in user to the sync components and
// routes events between them.
package session

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/hometab/internal/bootstrap"
	"github.com/MrSnakeDoc/hometab/internal/cloud"
	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/scheduler"
	"github.com/MrSnakeDoc/hometab/internal/workspace"
)

// Deps are the components a Manager wires together.
type Deps struct {
	Bus         *events.Bus
	Workspace   *workspace.Workspace
	Loader      *cloud.Loader
	Coordinator *bootstrap.Coordinator
	Scheduler   *scheduler.Autosync
	Feed        cloud.Subscriber
	Logger      logger.Logger
}

// Status is the session view exposed to the UI.
type Status struct {
	User        *domain.User        `json:"user"`
	Initialized bool                `json:"initialized"`
	Merged      bool                `json:"merged"`
	CloudLoaded bool                `json:"cloudLoaded"`
	Loading     bool                `json:"loading"`
	Sync        scheduler.SyncState `json:"sync"`
}

// Manager owns the session lifecycle: sync state is created on sign-in,
// reset on user change and torn down on sign-out.
type Manager struct {
	d Deps

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serialises lifecycle operations; mu guards the fields below
	// and is never held while calling into the components.
	opMu        sync.Mutex
	mu          sync.RWMutex
	user        *domain.User
	watchCancel context.CancelFunc
	unsubscribe func()
}

// New wires the components and applies the cached autosync settings.
func New(d Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{d: d, ctx: ctx, cancel: cancel}

	m.unsubscribe = d.Bus.Subscribe(m.handleEvent)
	d.Workspace.OnChange(m.handleChange)
	d.Scheduler.OnStatus(func(st scheduler.SyncState) {
		d.Bus.Publish(events.SyncStatusChanged, m.userID(), st)
	})

	m.applyAutoSyncSettings(d.Workspace.Settings())
	return m
}

func (m *Manager) handleEvent(ev events.Event) {
	switch ev.Type {
	case events.CloudDataUpdated:
		if ev.UserID != m.userID() {
			return
		}
		outcome := m.d.Coordinator.Evaluate()
		m.d.Logger.Debug("bootstrap evaluated",
			logger.String("user_id", ev.UserID),
			logger.String("outcome", string(outcome)))
	case events.Initialized:
		p, ok := ev.Payload.(bootstrap.InitializedPayload)
		if !ok || ev.UserID == "" {
			return
		}
		m.d.Scheduler.Seed(p.RemoteMissing)
	}
}

func (m *Manager) handleChange(c workspace.Change) {
	if c.Kind == workspace.ChangeSettings || c.Kind == workspace.ChangeReplaced {
		m.applyAutoSyncSettings(m.d.Workspace.Settings())
	}
	if c.Kind == workspace.ChangeDeleted {
		m.d.Scheduler.NotifyDeletion()
	} else {
		m.d.Scheduler.NotifyChange()
	}
	m.d.Bus.Publish(events.WorkspaceChanged, m.userID(), c)
}

// applyAutoSyncSettings lets settings saved by the user override the
// configured defaults. Unset fields keep the current value.
func (m *Manager) applyAutoSyncSettings(s domain.Settings) {
	st := m.d.Scheduler.Status()
	enabled, interval := st.AutoSyncEnabled, st.IntervalSeconds
	if s.AutoSyncEnabled != nil {
		enabled = *s.AutoSyncEnabled
	}
	if s.AutoSyncIntervalSeconds != nil {
		interval = *s.AutoSyncIntervalSeconds
	}
	m.d.Scheduler.SetConfig(enabled, interval)
}

// SignIn binds u to the session, subscribes to its change feed and runs
// the initial cloud load. Signing in again as the same user is a no-op.
// An unverified user gets a local-only session.
func (m *Manager) SignIn(ctx context.Context, u domain.User) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.user != nil && m.user.ID == u.ID && m.user.Eligible() == u.Eligible() {
		m.mu.Unlock()
		return nil
	}
	m.stopWatchLocked()
	user := u
	m.user = &user
	m.mu.Unlock()

	m.d.Loader.Reset(u.ID)
	m.d.Coordinator.SetUser(&user)
	m.d.Scheduler.SetUser(&user)
	m.d.Bus.Publish(events.UserSignedIn, u.ID, user)

	if !u.Eligible() {
		m.d.Logger.Info("signed in without verified email, using local data only",
			logger.String("user_id", u.ID))
		m.d.Coordinator.Evaluate()
		return nil
	}

	m.d.Logger.Info("user signed in", logger.String("user_id", u.ID))
	if m.d.Feed != nil {
		watchCtx, cancel := context.WithCancel(m.ctx)
		if err := m.d.Loader.Watch(watchCtx, m.d.Feed, u.ID); err != nil {
			cancel()
			m.d.Logger.Warn("change feed unavailable", logger.String("user_id", u.ID), logger.Error(err))
		} else {
			m.mu.Lock()
			m.watchCancel = cancel
			m.mu.Unlock()
		}
	}

	if _, err := m.d.Loader.Load(ctx, &user); err != nil {
		return err
	}
	return nil
}

// SignOut ends the session. The local working set stays on the device.
func (m *Manager) SignOut() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	prev := m.user
	m.user = nil
	m.stopWatchLocked()
	m.mu.Unlock()
	if prev == nil {
		return
	}

	m.d.Loader.Reset("")
	m.d.Coordinator.SetUser(nil)
	m.d.Scheduler.SetUser(nil)
	m.d.Logger.Info("user signed out", logger.String("user_id", prev.ID))
	m.d.Bus.Publish(events.UserSignedOut, prev.ID, nil)
	m.d.Coordinator.Evaluate()
}

// Sync is the explicit user-requested push. If the session is not
// initialized because the first load failed, the load is retried first.
func (m *Manager) Sync(ctx context.Context, force bool) error {
	u := m.User()
	if !u.Eligible() {
		return domain.ErrNotEligible
	}
	if !m.d.Coordinator.Initialized() && !m.d.Loader.InitialLoadDone() {
		if _, err := m.d.Loader.Load(ctx, u); err != nil {
			return err
		}
	}
	return m.d.Scheduler.TriggerSync(ctx, force)
}

// Reload re-reads the cloud copy. After the session's merge the result is
// informative only.
func (m *Manager) Reload(ctx context.Context) (cloud.Snapshot, error) {
	return m.d.Loader.Load(ctx, m.User())
}

// SetOnline forwards network changes and retries a failed initial load on
// reconnect.
func (m *Manager) SetOnline(online bool) {
	m.d.Scheduler.SetOnline(online)
	u := m.User()
	if !online || !u.Eligible() || m.d.Loader.InitialLoadDone() || m.d.Loader.Loading() {
		return
	}
	go func() {
		if _, err := m.d.Loader.Load(m.ctx, u); err != nil {
			m.d.Logger.Warn("cloud load after reconnect failed", logger.String("user_id", u.ID), logger.Error(err))
		}
	}()
}

// SetEditing forwards the editing-surface state to the scheduler.
func (m *Manager) SetEditing(open bool) {
	m.d.Scheduler.SetEditing(open)
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Status reports the session and sync state.
func (m *Manager) Status() Status {
	return Status{
		User:        m.User(),
		Initialized: m.d.Coordinator.Initialized(),
		Merged:      m.d.Coordinator.Merged(),
		CloudLoaded: m.d.Loader.InitialLoadDone(),
		Loading:     m.d.Loader.Loading(),
		Sync:        m.d.Scheduler.Status(),
	}
}

// Stop tears the session down for process shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopWatchLocked()
	m.mu.Unlock()
	m.unsubscribe()
	m.d.Scheduler.Stop()
	m.cancel()
}

func (m *Manager) userID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

func (m *Manager) stopWatchLocked() {
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
}
