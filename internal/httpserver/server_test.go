package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hometab/internal/bootstrap"
	"github.com/MrSnakeDoc/hometab/internal/clock"
	"github.com/MrSnakeDoc/hometab/internal/cloud"
	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/scheduler"
	"github.com/MrSnakeDoc/hometab/internal/session"
	"github.com/MrSnakeDoc/hometab/internal/store"
	"github.com/MrSnakeDoc/hometab/internal/workspace"
)

type fakeImporter struct {
	added int
	err   error
}

func (f *fakeImporter) Reload() (int, error) { return f.added, f.err }

type testEnv struct {
	remote  *store.MemoryRemote
	ws      *workspace.Workspace
	deps    deps.Deps
	handler http.Handler
}

func newTestEnv(t *testing.T, tweak func(*deps.Deps)) *testEnv {
	t.Helper()
	log := logger.New("error", false)
	remote := store.NewMemoryRemote()
	bus := events.NewBus()
	ws := workspace.New(nil, log)

	loader, err := cloud.NewLoader(remote, bus, "device-a", log)
	require.NoError(t, err)
	sched := scheduler.NewAutosync(scheduler.Config{
		Enabled:  true,
		Interval: 5 * time.Second,
		Origin:   "device-a",
	}, ws, remote, clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), log)

	mgr := session.New(session.Deps{
		Bus:         bus,
		Workspace:   ws,
		Loader:      loader,
		Coordinator: bootstrap.New(loader, ws, bus, log),
		Scheduler:   sched,
		Feed:        remote,
		Logger:      log,
	})
	t.Cleanup(mgr.Stop)

	d := deps.Deps{
		Logger:     log,
		StartTime:  time.Now(),
		Version:    "test",
		TimeNow:    time.Now,
		RateBurst:  1000,
		RatePerMin: 1000,
		DeviceID:   "device-a",
		Session:    mgr,
		Workspace:  ws,
		Bus:        bus,
		Remote:     remote,
	}
	if tweak != nil {
		tweak(&d)
	}
	return &testEnv{remote: remote, ws: ws, deps: d, handler: NewRouter(log, d)}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "device-a", body["device_id"])
}

func TestReadyz(t *testing.T) {
	e := newTestEnv(t, nil)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/readyz", "").Code)

	limited := newTestEnv(t, func(d *deps.Deps) { d.AllowedCIDRS = []string{"10.0.0.0/8"} })
	assert.Equal(t, http.StatusForbidden, limited.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestBookmarkLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/bookmarks", `{"name":"Go","url":"https://go.dev","tags":["dev"," lang "]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.BookmarkRecord](t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"dev", "lang"}, created.Tags)

	rec = e.do(t, http.MethodPut, "/api/bookmarks/"+created.ID, `{"name":"Go website"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Go website", decode[domain.BookmarkRecord](t, rec).Name)

	rec = e.do(t, http.MethodPost, "/api/bookmarks/"+created.ID+"/visit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[domain.BookmarkRecord](t, rec).VisitCount)

	rec = e.do(t, http.MethodGet, "/api/bookmarks/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/bookmarks/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/bookmarks/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, e.ws.Count())
}

func TestBookmarkErrors(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing url", http.MethodPost, "/api/bookmarks", `{"name":"x"}`, http.StatusUnprocessableEntity, "invalid_record"},
		{"unknown field", http.MethodPost, "/api/bookmarks", `{"name":"x","url":"https://x","colour":"red"}`, http.StatusBadRequest, "bad_request"},
		{"update unknown", http.MethodPut, "/api/bookmarks/nope", `{"name":"x"}`, http.StatusNotFound, "not_found"},
		{"delete unknown", http.MethodDelete, "/api/bookmarks/nope", "", http.StatusNotFound, "not_found"},
		{"bad sort", http.MethodGet, "/api/bookmarks?sort=name", "", http.StatusBadRequest, "bad_request"},
		{"empty reorder", http.MethodPut, "/api/bookmarks/order", `{"ids":[]}`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[map[string]string](t, rec)["code"])
		})
	}
}

func TestListBookmarksSortedByVisits(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ws.Load([]domain.BookmarkRecord{
		{ID: "a", Name: "a", URL: "https://a.example", VisitCount: 1},
		{ID: "b", Name: "b", URL: "https://b.example", VisitCount: 9},
	}, domain.Settings{})

	rec := e.do(t, http.MethodGet, "/api/bookmarks?sort=visits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.BookmarkRecord](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	rec = e.do(t, http.MethodPut, "/api/bookmarks/order", `{"ids":["b"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b", decode[[]domain.BookmarkRecord](t, rec)[0].ID)
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ws.Load([]domain.BookmarkRecord{
		{ID: "jf", Name: "jellyfin", URL: "https://jellyfin.home.lan"},
		{ID: "gh", Name: "GitHub", URL: "https://github.com"},
	}, domain.Settings{})

	rec := e.do(t, http.MethodGet, "/api/search?q=jelly", "")
	require.Equal(t, http.StatusOK, rec.Code)
	candidates := decode[[]domain.RecordCandidate](t, rec)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "jf", candidates[0].Record.ID)

	rec = e.do(t, http.MethodGet, "/api/search?q=jelly&go=1", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://jellyfin.home.lan", rec.Header().Get("Location"))
	got, _ := e.ws.Get("jf")
	assert.Equal(t, int64(1), got.VisitCount)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/search?q=x&limit=0", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/search?q=zzzzqqq&go=1", "").Code)
}

func TestSettings(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPut, "/api/settings", `{"theme":"dark","autoSyncIntervalSeconds":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[domain.Settings](t, rec)
	require.NotNil(t, s.Theme)
	assert.Equal(t, "dark", *s.Theme)
	require.NotNil(t, s.AutoSyncIntervalSeconds)
	assert.Equal(t, 3, *s.AutoSyncIntervalSeconds)

	rec = e.do(t, http.MethodGet, "/api/settings", "")
	assert.Equal(t, "dark", *decode[domain.Settings](t, rec).Theme)
}

func TestSessionAndManualSync(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, e.remote.WriteRemote(context.Background(), "alice", domain.Document{
		Records: []domain.BookmarkRecord{{ID: "x", Name: "x", URL: "https://x.example"}},
	}))

	rec = e.do(t, http.MethodPost, "/api/session", `{"id":"alice","emailVerified":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decode[session.Status](t, rec)
	assert.True(t, status.Initialized)
	assert.True(t, status.CloudLoaded)
	assert.Equal(t, 1, e.ws.Count())

	rec = e.do(t, http.MethodPost, "/api/sync?force=false", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decode[scheduler.SyncState](t, rec)
	assert.False(t, state.LastSyncTime.IsZero())

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/sync?force=maybe", "").Code)

	rec = e.do(t, http.MethodPut, "/api/network", `{"online":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[scheduler.SyncState](t, rec).IsOnline)
	assert.Equal(t, http.StatusServiceUnavailable, e.do(t, http.MethodPost, "/api/sync", "").Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPut, "/api/ui/editing", `{"open":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/ui/editing", `{}`).Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/session", "").Code)
	rec = e.do(t, http.MethodGet, "/api/session", "")
	assert.Nil(t, decode[session.Status](t, rec).User)
}

func TestSignInValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/session", `{"id":"  "}`).Code)

	e.remote.FailWith(errors.New("connection refused"))
	rec := e.do(t, http.MethodPost, "/api/session", `{"id":"bob","emailVerified":true}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestImport(t *testing.T) {
	e := newTestEnv(t, nil)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/import", "").Code)

	withSource := newTestEnv(t, func(d *deps.Deps) { d.Homepage = &fakeImporter{added: 3} })
	rec := withSource.do(t, http.MethodPost, "/api/import", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[map[string]int](t, rec)["added"])

	failing := newTestEnv(t, func(d *deps.Deps) { d.Homepage = &fakeImporter{err: errors.New("no records")} })
	assert.Equal(t, http.StatusUnprocessableEntity, failing.do(t, http.MethodPost, "/api/import", "").Code)
}

func TestHostAndRateGuards(t *testing.T) {
	e := newTestEnv(t, func(d *deps.Deps) {
		d.AllowedHosts = []string{"home.lan", "*.home.lan"}
		d.RateBurst = 2
		d.RatePerMin = 1
	})

	req := httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	req.Host = "evil.example"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
		req.Host = "tab.home.lan:8080"
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// probes stay outside the API guards
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestEventStream(t *testing.T) {
	e := newTestEnv(t, nil)
	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var hello map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	assert.Equal(t, string(events.SyncStatusChanged), hello["type"])

	_, err = e.ws.Add("Go", "https://go.dev", nil, "")
	require.NoError(t, err)

	for {
		var ev map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		if ev["type"] == string(events.WorkspaceChanged) {
			payload, ok := ev["payload"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "added", payload["kind"])
			return
		}
	}
}
