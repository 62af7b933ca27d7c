package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hometab/internal/bootstrap"
	"github.com/MrSnakeDoc/hometab/internal/clock"
	"github.com/MrSnakeDoc/hometab/internal/cloud"
	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/scheduler"
	"github.com/MrSnakeDoc/hometab/internal/store"
	"github.com/MrSnakeDoc/hometab/internal/store/local"
	"github.com/MrSnakeDoc/hometab/internal/workspace"
)

var alice = domain.User{ID: "alice", EmailVerified: true}

type countingWriter struct {
	mu     sync.Mutex
	remote *store.MemoryRemote
	writes []domain.Document
}

func (w *countingWriter) WriteRemote(ctx context.Context, userID string, doc domain.Document) error {
	w.mu.Lock()
	w.writes = append(w.writes, doc.Clone())
	w.mu.Unlock()
	return w.remote.WriteRemote(ctx, userID, doc)
}

func (w *countingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

type env struct {
	clock  *clock.Manual
	remote *store.MemoryRemote
	writer *countingWriter
	cache  *local.Cache
	bus    *events.Bus
	ws     *workspace.Workspace
	loader *cloud.Loader
	sched  *scheduler.Autosync
	mgr    *Manager

	mu     sync.Mutex
	events []events.Event
}

func newEnv(t *testing.T, localRecs ...domain.BookmarkRecord) *env {
	t.Helper()
	log := logger.New("error", false)
	e := &env{
		clock:  clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		remote: store.NewMemoryRemote(),
		bus:    events.NewBus(),
		cache:  local.NewCache(local.NewMemoryKV()),
	}
	e.writer = &countingWriter{remote: e.remote}
	e.bus.Subscribe(func(ev events.Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	})

	e.ws = workspace.New(nil, log)
	e.ws.Load(localRecs, domain.Settings{})

	var err error
	e.loader, err = cloud.NewLoader(e.remote, e.bus, "device-a", log)
	require.NoError(t, err)

	e.sched = scheduler.NewAutosync(scheduler.Config{
		Enabled:  true,
		Interval: 5 * time.Second,
		Origin:   "device-a",
		Sink:     e.cache,
	}, e.ws, e.writer, e.clock, log)

	e.mgr = New(Deps{
		Bus:         e.bus,
		Workspace:   e.ws,
		Loader:      e.loader,
		Coordinator: bootstrap.New(e.loader, e.ws, e.bus, log),
		Scheduler:   e.sched,
		Feed:        e.remote,
		Logger:      log,
	})
	t.Cleanup(e.mgr.Stop)
	return e
}

func (e *env) count(t events.Type) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func rec(id, url string, visits int64) domain.BookmarkRecord {
	return domain.BookmarkRecord{ID: id, Name: id, URL: url, VisitCount: visits}
}

func TestSignInCloudOnlyDoesNotWrite(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.remote.WriteRemote(context.Background(), "alice", domain.Document{
		Records: []domain.BookmarkRecord{rec("a", "https://x.com", 5)},
	}))

	require.NoError(t, e.mgr.SignIn(context.Background(), alice))

	assert.Equal(t, []string{"a"}, domain.RecordIDs(e.ws.Records()))
	assert.True(t, e.mgr.Status().Initialized)
	e.clock.Advance(time.Minute)
	assert.Zero(t, e.writer.count(), "cloud-only bootstrap must not push")
	assert.Equal(t, 1, e.count(events.Initialized))
}

func TestSignInNewUserUploadsOnce(t *testing.T) {
	e := newEnv(t, rec("a", "https://a.com", 0))

	require.NoError(t, e.mgr.SignIn(context.Background(), alice))
	assert.Zero(t, e.writer.count(), "no push on login")

	e.clock.Advance(5 * time.Second)
	require.Equal(t, 1, e.writer.count())

	doc, err := e.remote.ReadRemote(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, []string{"a"}, domain.RecordIDs(doc.Records))
	assert.Equal(t, "device-a", doc.Origin)

	e.clock.Advance(time.Minute)
	assert.Equal(t, 1, e.writer.count())
}

func TestEditsAreDebouncedIntoOnePush(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.remote.WriteRemote(context.Background(), "alice", domain.Document{
		Records: []domain.BookmarkRecord{rec("a", "https://a.com", 1)},
	}))
	require.NoError(t, e.mgr.SignIn(context.Background(), alice))

	for i := 0; i < 3; i++ {
		_, err := e.ws.Visit("a")
		require.NoError(t, err)
		e.clock.Advance(2 * time.Second)
	}
	assert.Zero(t, e.writer.count())

	e.clock.Advance(3 * time.Second)
	require.Equal(t, 1, e.writer.count())
	assert.Equal(t, int64(4), e.writer.writes[0].Records[0].VisitCount)
	assert.Equal(t, scheduler.StateIdle, e.mgr.Status().Sync.State)
	assert.Positive(t, e.count(events.SyncStatusChanged))
	assert.Equal(t, 3, e.count(events.WorkspaceChanged)-1, "three visits after the bootstrap replace")
}

func TestDeletingLastBookmarkReachesCloud(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.remote.WriteRemote(context.Background(), "alice", domain.Document{
		Records: []domain.BookmarkRecord{rec("a", "https://a.com", 1)},
	}))
	require.NoError(t, e.mgr.SignIn(context.Background(), alice))

	require.NoError(t, e.ws.Delete("a"))
	e.clock.Advance(time.Minute)

	require.Equal(t, 1, e.writer.count())
	doc, err := e.remote.ReadRemote(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Records)

	e.mgr.SignOut()
	require.NoError(t, e.mgr.SignIn(context.Background(), alice))
	assert.Empty(t, e.ws.Records(), "deleted bookmark must not come back on the next merge")
}

func TestRemotePushAfterMergeIsInformative(t *testing.T) {
	e := newEnv(t, rec("a", "https://a.com", 1))
	require.NoError(t, e.remote.WriteRemote(context.Background(), "alice", domain.Document{
		Records: []domain.BookmarkRecord{rec("b", "https://b.com", 1)},
	}))
	require.NoError(t, e.mgr.SignIn(context.Background(), alice))
	require.ElementsMatch(t, []string{"a", "b"}, domain.RecordIDs(e.ws.Records()))

	require.NoError(t, e.remote.WriteRemote(context.Background(), "alice", domain.Document{
		Records: []domain.BookmarkRecord{rec("c", "https://c.com", 1)},
		Origin:  "device-b",
	}))

	require.Eventually(t, func() bool {
		snap, ok := e.loader.Snapshot()
		return ok && snap.Source == cloud.SourcePush
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, domain.RecordIDs(e.ws.Records()))
}

func TestUnverifiedUserIsLocalOnly(t *testing.T) {
	e := newEnv(t, rec("a", "https://a.com", 0))

	require.NoError(t, e.mgr.SignIn(context.Background(), domain.User{ID: "bob"}))

	st := e.mgr.Status()
	assert.True(t, st.Initialized)
	assert.False(t, st.CloudLoaded)
	assert.ErrorIs(t, e.mgr.Sync(context.Background(), true), domain.ErrNotEligible)

	_, err := e.ws.Add("b", "https://b.com", nil, "")
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	assert.Zero(t, e.writer.count())
}

func TestSyncRetriesFailedInitialLoad(t *testing.T) {
	e := newEnv(t, rec("a", "https://a.com", 0))
	e.remote.FailWith(errors.New("unreachable"))

	err := e.mgr.SignIn(context.Background(), alice)
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	assert.False(t, e.mgr.Status().Initialized)
	assert.ErrorIs(t, e.sched.TriggerSync(context.Background(), true), domain.ErrNotInitialized)

	e.remote.FailWith(nil)
	require.NoError(t, e.mgr.Sync(context.Background(), true))
	assert.True(t, e.mgr.Status().Initialized)
	assert.Equal(t, 1, e.writer.count())
}

func TestSignOutResetsSyncState(t *testing.T) {
	e := newEnv(t, rec("a", "https://a.com", 0))
	require.NoError(t, e.mgr.SignIn(context.Background(), alice))

	e.mgr.SignOut()

	st := e.mgr.Status()
	assert.Nil(t, st.User)
	assert.False(t, st.Merged)
	assert.Equal(t, scheduler.MsgNotLoggedIn, st.Sync.StatusMessage)
	assert.Equal(t, []string{"a"}, domain.RecordIDs(e.ws.Records()), "local data stays on the device")

	e.clock.Advance(time.Minute)
	assert.Zero(t, e.writer.count(), "pending upload cancelled by sign-out")
	assert.Equal(t, 1, e.count(events.UserSignedOut))
}

func TestSyncedFingerprintOutlivesSignOut(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.remote.WriteRemote(context.Background(), "alice", domain.Document{
		Records: []domain.BookmarkRecord{rec("a", "https://a.com", 1)},
	}))
	require.NoError(t, e.mgr.SignIn(context.Background(), alice))

	seeded, ok, err := e.cache.LoadFingerprint("alice")
	require.NoError(t, err)
	require.True(t, ok, "bootstrap records the synced baseline")
	assert.Equal(t, e.mgr.Status().Sync.LastSyncFingerprint, seeded)

	_, err = e.ws.Visit("a")
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	require.Equal(t, 1, e.writer.count())
	pushed := e.mgr.Status().Sync.LastSyncFingerprint

	e.mgr.SignOut()

	fp, ok, err := e.cache.LoadFingerprint("alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pushed, fp)
}

func TestSettingsOverrideAutosyncConfig(t *testing.T) {
	e := newEnv(t)
	e.ws.UpdateSettings(domain.Settings{
		AutoSyncEnabled:         domain.Ptr(false),
		AutoSyncIntervalSeconds: domain.Ptr(30),
	})

	st := e.sched.Status()
	assert.False(t, st.AutoSyncEnabled)
	assert.Equal(t, 30, st.IntervalSeconds)
}
