package cloudmap

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepos(t *testing.T) map[string]Repository {
	t.Helper()
	boltRepo, err := NewBoltRepositoryFromFile(filepath.Join(t.TempDir(), "map.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { boltRepo.Close() })

	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"bolt":   boltRepo,
	}
}

func TestPutAndLookups(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			m := Mapping{LocalID: "trip-notes", CloudID: "c-1", PublishedAt: now, LastServerTimestamp: now}
			require.NoError(t, repo.Put(m))

			got, ok := repo.ByLocalID("trip-notes")
			require.True(t, ok)
			assert.Equal(t, "c-1", got.CloudID)

			got, ok = repo.ByCloudID("c-1")
			require.True(t, ok)
			assert.Equal(t, "trip-notes", got.LocalID)

			_, ok = repo.ByLocalID("nope")
			assert.False(t, ok)
		})
	}
}

func TestPutIsIdempotentAndRebinds(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC()
			require.NoError(t, repo.Put(Mapping{LocalID: "a", CloudID: "c-1", PublishedAt: now}))
			require.NoError(t, repo.Put(Mapping{LocalID: "a", CloudID: "c-1", PublishedAt: now}))

			// Re-publish under a new cloud id drops the stale reverse row.
			require.NoError(t, repo.Put(Mapping{LocalID: "a", CloudID: "c-2", PublishedAt: now}))
			_, ok := repo.ByCloudID("c-1")
			assert.False(t, ok)
			got, ok := repo.ByCloudID("c-2")
			require.True(t, ok)
			assert.Equal(t, "a", got.LocalID)
		})
	}
}

func TestRemove(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Put(Mapping{LocalID: "a", CloudID: "c-1"}))
			require.NoError(t, repo.Remove("a"))

			_, ok := repo.ByLocalID("a")
			assert.False(t, ok)
			_, ok = repo.ByCloudID("c-1")
			assert.False(t, ok)

			// Removing a missing mapping is a no-op.
			require.NoError(t, repo.Remove("a"))
		})
	}
}

func TestSetServerTimestamp(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Put(Mapping{LocalID: "a", CloudID: "c-1"}))

			ts := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, repo.SetServerTimestamp("a", ts))

			got, ok := repo.ByLocalID("a")
			require.True(t, ok)
			assert.True(t, got.LastServerTimestamp.Equal(ts))

			// Unknown local ids are ignored.
			require.NoError(t, repo.SetServerTimestamp("nope", ts))
		})
	}
}

func TestBoltRepositoryReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.db")

	repo, err := NewBoltRepositoryFromFile(path, nil)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Put(Mapping{LocalID: "a", CloudID: "c-1", PublishedAt: now, LastServerTimestamp: now}))
	require.NoError(t, repo.Close())

	reopened, err := NewBoltRepositoryFromFile(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.ByLocalID("a")
	require.True(t, ok)
	assert.Equal(t, "c-1", got.CloudID)
	assert.True(t, got.LastServerTimestamp.Equal(now))
}

func TestAll(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Put(Mapping{LocalID: "a", CloudID: "c-1"}))
			require.NoError(t, repo.Put(Mapping{LocalID: "b", CloudID: "c-2"}))

			all, err := repo.All()
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}
