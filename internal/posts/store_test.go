package posts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SPost-Planner/internal/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "posts.toml"))
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created := time.Date(2026, 2, 3, 4, 5, 6, 7000000, time.UTC)

	d := Draft{
		ID:          "post-1",
		Content:     "Hello\n\"quoted\" world",
		Visibility:  "PUBLIC",
		Media:       []bridge.Media{{URL: "https://example.com/a.png", Type: "image"}},
		Tags:        []string{"go"},
		Status:      StatusScheduled,
		ScheduledAt: created.Add(time.Hour),
		Metrics:     Metrics{Likes: 3},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, s.Save(ctx, d))

	got, err := s.Get(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(storeFileMode), info.Mode().Perm())
}

func TestStoreSaveReplacesAndDeletes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Save(ctx, Draft{ID: "a", Content: "one", Status: StatusDraft}))
	require.NoError(t, s.Save(ctx, Draft{ID: "b", Content: "two", Status: StatusDraft}))
	require.NoError(t, s.Save(ctx, Draft{ID: "a", Content: "one, edited", Status: StatusDraft}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "one, edited", all[0].Content)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), ErrPostNotFound)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	all, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	c, err := s.Connection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Connection{}, c)
}

func TestStoreRejectsNewerSchema(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("version = 9\n"), 0o600))

	_, err := s.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported posts schema version 9")
}

func TestStoreConnectionState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ok, err := s.Connected(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, s.SaveConnection(ctx, Connection{
		MemberURN:   "urn:li:person:abc",
		AccessToken: "tok-1",
		ExpiresAt:   now.Add(time.Hour),
	}))

	ok, err = s.Connected(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	token, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	c, err := s.Connection(ctx)
	require.NoError(t, err)
	assert.Equal(t, now, c.UpdatedAt)

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	ok, err = s.Connected(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSharesLockPerPath(t *testing.T) {
	dir := t.TempDir()
	a, err := NewStore(filepath.Join(dir, "posts.toml"))
	require.NoError(t, err)
	b, err := NewStore(filepath.Join(dir, ".", "posts.toml"))
	require.NoError(t, err)
	assert.Same(t, a.mu, b.mu)
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, Draft{ID: "x"}), context.Canceled)
}
