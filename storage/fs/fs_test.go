package fs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "entries"))
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	e := &storage.JournalEntry{
		ID:         "trip-notes",
		Title:      "Trip notes",
		Content:    "Day one.",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		ModifiedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Save(ctx, e))
	assert.Equal(t, "trip-notes.json", e.FilePath)

	got, err := s.Load(ctx, "trip-notes")
	require.NoError(t, err)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, e.Content, got.Content)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
}

func TestSaveOverwrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	e := &storage.JournalEntry{ID: "a", Title: "first", Content: "v1"}
	require.NoError(t, s.Save(ctx, e))
	e.Content = "v2"
	require.NoError(t, s.Save(ctx, e))

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
}

func TestLoadMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &storage.JournalEntry{ID: "a", Title: "t", Content: "c"}))
	require.NoError(t, s.Delete(ctx, "a"))

	ok, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Delete(ctx, "a"), storage.ErrNotFound)
}

func TestList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &storage.JournalEntry{ID: "a", Title: "one", Content: "1"}))
	require.NoError(t, s.Save(ctx, &storage.JournalEntry{ID: "b", Title: "two", Content: "2"}))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
