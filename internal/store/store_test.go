package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

func TestMemoryRemoteReadMissing(t *testing.T) {
	m := NewMemoryRemote()
	doc, err := m.ReadRemote(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, doc, "a new user has no document, not an error")
}

func TestMemoryRemoteWriteReadAndNotify(t *testing.T) {
	m := NewMemoryRemote()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := m.Subscribe(ctx, "u1")
	require.NoError(t, err)

	doc := domain.Document{
		Records:  []domain.BookmarkRecord{{ID: "a", Name: "a", URL: "https://a.com", Tags: []string{"x"}}},
		Settings: domain.Settings{Theme: domain.Ptr("dark")},
		Origin:   "laptop",
	}
	require.NoError(t, m.WriteRemote(ctx, "u1", doc))

	got, err := m.ReadRemote(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.Records, got.Records)
	assert.Equal(t, "dark", *got.Settings.Theme)

	// The stored copy does not alias the caller's slice.
	doc.Records[0].Tags[0] = "mutated"
	again, _ := m.ReadRemote(ctx, "u1")
	assert.Equal(t, "x", again.Records[0].Tags[0])

	select {
	case raw := <-feed:
		var note domain.ChangeNotification
		require.NoError(t, json.Unmarshal(raw, &note))
		assert.Equal(t, "u1", note.UserID)
		assert.Equal(t, "laptop", note.Origin)
		assert.Len(t, note.Records, 1)
	case <-time.After(time.Second):
		t.Fatal("no change notification received")
	}
}

func TestMemoryRemoteFailure(t *testing.T) {
	m := NewMemoryRemote()
	m.FailWith(errors.New("down"))

	err := m.WriteRemote(context.Background(), "u1", domain.Document{})
	assert.True(t, domain.IsTransport(err))

	_, err = m.ReadRemote(context.Background(), "u1")
	assert.True(t, domain.IsTransport(err))
}

func TestMemoryRemoteSubscriptionClosesOnCancel(t *testing.T) {
	m := NewMemoryRemote()
	ctx, cancel := context.WithCancel(context.Background())
	feed, err := m.Subscribe(ctx, "u1")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-feed:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("feed not closed")
	}
}

func TestOpenByScheme(t *testing.T) {
	log := logger.New("error", false)

	s, err := Open(context.Background(), "memory://", Tuning{}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryRemote{}, s)

	_, err = Open(context.Background(), "ftp://example.com", Tuning{}, log)
	assert.Error(t, err)

	_, err = Open(context.Background(), "", Tuning{}, log)
	assert.Error(t, err)
}
