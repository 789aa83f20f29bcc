package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewFromFile(filepath.Join(t.TempDir(), "entries.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	e := &storage.JournalEntry{ID: "a", Title: "one", Content: "hello"}
	require.NoError(t, s.Save(ctx, e))

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	ok, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Load(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), storage.ErrNotFound)
}

func TestListAndUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &storage.JournalEntry{ID: "a", Title: "one", Content: "1"}))
	require.NoError(t, s.Save(ctx, &storage.JournalEntry{ID: "b", Title: "two", Content: "2"}))
	require.NoError(t, s.Save(ctx, &storage.JournalEntry{ID: "a", Title: "one", Content: "1b"}))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1b", got.Content)
}
