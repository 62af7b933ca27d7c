package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hometab/internal/domain"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "document", got: DocumentKey("u1"), want: "hometab:doc:u1"},
		{name: "changes", got: ChangesChannel("u1"), want: "hometab:changes:u1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s key = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestExtractUserID(t *testing.T) {
	id, err := ExtractUserID("hometab:doc:abc")
	if err != nil || id != "abc" {
		t.Errorf("ExtractUserID() = %q, %v; want abc", id, err)
	}
	if _, err := ExtractUserID("hometab:doc:"); err == nil {
		t.Error("ExtractUserID() should reject a bare prefix")
	}
	if _, err := ExtractUserID("other:doc:abc"); err == nil {
		t.Error("ExtractUserID() should reject foreign keys")
	}
}

// newTestStore connects to HOMETAB_TEST_REDIS_ADDR or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("HOMETAB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HOMETAB_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return NewStore(client)
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.ReadRemote(ctx, "new-user")
	require.NoError(t, err)
	assert.Nil(t, doc)

	feed, err := s.Subscribe(ctx, "u1")
	require.NoError(t, err)

	want := domain.Document{
		Records: []domain.BookmarkRecord{{ID: "a", Name: "a", URL: "https://a.com", VisitCount: 3}},
		Origin:  "desk",
	}
	require.NoError(t, s.WriteRemote(ctx, "u1", want))

	got, err := s.ReadRemote(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want.Records, got.Records)

	select {
	case raw := <-feed:
		var note domain.ChangeNotification
		require.NoError(t, json.Unmarshal(raw, &note))
		assert.Equal(t, "u1", note.UserID)
		assert.Equal(t, "desk", note.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}
}
