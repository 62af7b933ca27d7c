package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/store"
)

var verified = &domain.User{ID: "u1", EmailVerified: true}

type countingReader struct {
	calls atomic.Int32
	gate  chan struct{}
	doc   *domain.Document
	err   error
}

func (r *countingReader) ReadRemote(ctx context.Context, _ string) (*domain.Document, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.doc, r.err
}

func newTestLoader(t *testing.T, reader Reader) (*Loader, *events.Bus, *[]events.Event) {
	t.Helper()
	bus := events.NewBus()
	var mu sync.Mutex
	var got []events.Event
	bus.Subscribe(func(ev events.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	l, err := NewLoader(reader, bus, "device-a", logger.New("error", false))
	require.NoError(t, err)
	return l, bus, &got
}

func TestLoadRequiresEligibleUser(t *testing.T) {
	reader := &countingReader{}
	l, _, got := newTestLoader(t, reader)

	for _, u := range []*domain.User{nil, {ID: "u1"}, {EmailVerified: true}} {
		_, err := l.Load(context.Background(), u)
		assert.ErrorIs(t, err, domain.ErrNotEligible)
	}
	assert.Zero(t, reader.calls.Load(), "no network call without an eligible user")
	assert.Empty(t, *got)
	assert.False(t, l.InitialLoadDone())
}

func TestLoadStoresSnapshotAndPublishes(t *testing.T) {
	reader := &countingReader{doc: &domain.Document{
		Records:  []domain.BookmarkRecord{{ID: "a", Name: "A", URL: "https://a.com", VisitCount: 5}},
		Settings: domain.Settings{Theme: domain.Ptr("dark")},
	}}
	l, _, got := newTestLoader(t, reader)

	snap, err := l.Load(context.Background(), verified)
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, SourceLoad, snap.Source)
	assert.Len(t, snap.Records, 1)
	assert.True(t, l.InitialLoadDone())

	stored, ok := l.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "dark", *stored.Settings.Theme)

	require.Len(t, *got, 1)
	ev := (*got)[0]
	assert.Equal(t, events.CloudDataUpdated, ev.Type)
	assert.Equal(t, "u1", ev.UserID)
	assert.IsType(t, Snapshot{}, ev.Payload)
}

func TestLoadMissingDocument(t *testing.T) {
	l, _, _ := newTestLoader(t, &countingReader{})

	snap, err := l.Load(context.Background(), verified)
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Empty(t, snap.Records)
	assert.True(t, l.InitialLoadDone())
}

func TestLoadWrapsTransportErrors(t *testing.T) {
	reader := &countingReader{err: errors.New("connection refused")}
	l, _, got := newTestLoader(t, reader)

	_, err := l.Load(context.Background(), verified)
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	assert.False(t, l.InitialLoadDone())
	assert.Empty(t, *got)
}

func TestConcurrentLoadsShareOneRead(t *testing.T) {
	reader := &countingReader{gate: make(chan struct{}), doc: &domain.Document{}}
	l, _, got := newTestLoader(t, reader)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Load(context.Background(), verified)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return reader.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, l.Loading())
	// Give the other callers time to join the in-flight read.
	time.Sleep(20 * time.Millisecond)
	close(reader.gate)
	wg.Wait()

	assert.Equal(t, int32(1), reader.calls.Load())
	assert.False(t, l.Loading())
	assert.Len(t, *got, 1)
}

func TestResetDiscardsStaleLoad(t *testing.T) {
	reader := &countingReader{gate: make(chan struct{}), doc: &domain.Document{}}
	l, _, got := newTestLoader(t, reader)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Load(context.Background(), verified)
	}()
	require.Eventually(t, func() bool { return reader.calls.Load() == 1 }, time.Second, time.Millisecond)

	l.Reset("")
	close(reader.gate)
	<-done

	_, ok := l.Snapshot()
	assert.False(t, ok)
	assert.False(t, l.InitialLoadDone())
	assert.Empty(t, *got)
}

func pushPayload(t *testing.T, note domain.ChangeNotification) []byte {
	t.Helper()
	raw, err := json.Marshal(note)
	require.NoError(t, err)
	return raw
}

func TestApplyPush(t *testing.T) {
	l, _, got := newTestLoader(t, &countingReader{doc: &domain.Document{
		Settings: domain.Settings{Theme: domain.Ptr("dark")},
	}})
	_, err := l.Load(context.Background(), verified)
	require.NoError(t, err)

	err = l.ApplyPush(pushPayload(t, domain.ChangeNotification{
		UserID:  "u1",
		Origin:  "device-b",
		Records: []domain.BookmarkRecord{{ID: "b", Name: "B", URL: "https://b.com"}},
	}))
	require.NoError(t, err)

	snap, ok := l.Snapshot()
	require.True(t, ok)
	assert.Equal(t, SourcePush, snap.Source)
	assert.Equal(t, []string{"b"}, domain.RecordIDs(snap.Records))
	assert.Equal(t, "dark", *snap.Settings.Theme, "settings kept when the push carries none")
	assert.Len(t, *got, 2)
}

func TestApplyPushIgnored(t *testing.T) {
	tests := []struct {
		name string
		load bool
		note domain.ChangeNotification
	}{
		{"before initial load", false, domain.ChangeNotification{UserID: "u1", Records: []domain.BookmarkRecord{}}},
		{"other user", true, domain.ChangeNotification{UserID: "u2", Records: []domain.BookmarkRecord{}}},
		{"own echo", true, domain.ChangeNotification{UserID: "u1", Origin: "device-a", Records: []domain.BookmarkRecord{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, got := newTestLoader(t, &countingReader{doc: &domain.Document{
				Records: []domain.BookmarkRecord{{ID: "a", Name: "A", URL: "https://a.com"}},
			}})
			if tt.load {
				_, err := l.Load(context.Background(), verified)
				require.NoError(t, err)
			} else {
				l.Reset("u1")
			}
			before := len(*got)

			require.NoError(t, l.ApplyPush(pushPayload(t, tt.note)))
			assert.Len(t, *got, before)
			if snap, ok := l.Snapshot(); ok {
				assert.Equal(t, []string{"a"}, domain.RecordIDs(snap.Records))
			}
		})
	}
}

func TestApplyPushRejectsMalformed(t *testing.T) {
	l, _, _ := newTestLoader(t, &countingReader{doc: &domain.Document{
		Records: []domain.BookmarkRecord{{ID: "a", Name: "A", URL: "https://a.com"}},
	}})
	_, err := l.Load(context.Background(), verified)
	require.NoError(t, err)

	payloads := map[string]string{
		"not json":           `{"userId":`,
		"records not array":  `{"userId":"u1","records":{"id":"x"}}`,
		"records missing":    `{"userId":"u1"}`,
		"record without id":  `{"userId":"u1","records":[{"name":"x"}]}`,
		"negative visits":    `{"userId":"u1","records":[{"id":"x","visitCount":-1}]}`,
		"top level array":    `[{"id":"x"}]`,
		"user id not string": `{"userId":7,"records":[]}`,
	}
	for name, raw := range payloads {
		t.Run(name, func(t *testing.T) {
			err := l.ApplyPush([]byte(raw))
			assert.ErrorIs(t, err, domain.ErrMalformedPush)
		})
	}

	snap, _ := l.Snapshot()
	assert.Equal(t, []string{"a"}, domain.RecordIDs(snap.Records), "snapshot untouched by rejected pushes")
}

func TestWatchAppliesFeed(t *testing.T) {
	remote := store.NewMemoryRemote()
	l, _, _ := newTestLoader(t, remote)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := l.Load(ctx, verified)
	require.NoError(t, err)
	require.NoError(t, l.Watch(ctx, remote, "u1"))

	require.NoError(t, remote.WriteRemote(ctx, "u1", domain.Document{
		Records: []domain.BookmarkRecord{{ID: "z", Name: "Z", URL: "https://z.com"}},
		Origin:  "device-b",
	}))

	assert.Eventually(t, func() bool {
		snap, ok := l.Snapshot()
		return ok && len(snap.Records) == 1 && snap.Records[0].ID == "z"
	}, time.Second, 5*time.Millisecond)
}
