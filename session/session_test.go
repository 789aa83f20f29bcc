package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/entry"
	"github.com/quillnotes/quill/keys"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s := New(opts...)
	t.Cleanup(s.Close)
	return s
}

func encryptedBlob(t *testing.T, password string) (string, keys.UserKeyPair) {
	t.Helper()
	pair, err := keys.GenerateUserKeys()
	require.NoError(t, err)
	blob, err := keys.EncryptSecretKey(pair.Secret, password)
	require.NoError(t, err)
	return blob, pair
}

func envelope(t *testing.T, content, password string) string {
	t.Helper()
	env, err := entry.EncryptWithPassword(content, password)
	require.NoError(t, err)
	return env
}

func TestUnlockLockLifecycle(t *testing.T) {
	s := newTestService(t)
	blob, pair := encryptedBlob(t, "pw")

	assert.Equal(t, StateLocked, s.State())
	assert.False(t, s.Unlock(blob, "wrong"))
	assert.Equal(t, StateLocked, s.State())

	require.True(t, s.Unlock(blob, "pw"))
	assert.Equal(t, StateUnlocked, s.State())
	assert.Equal(t, pair.Public, s.PublicKey())

	used, err := s.UseKeyPair(func(got keys.UserKeyPair) error {
		assert.Equal(t, pair.Secret, got.Secret)
		assert.Equal(t, pair.Public, got.Public)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, used)

	s.Lock()
	assert.Equal(t, StateLocked, s.State())
	assert.Equal(t, [32]byte{}, s.PublicKey())

	used, err = s.UseKeyPair(func(keys.UserKeyPair) error { return nil })
	require.NoError(t, err)
	assert.False(t, used)
}

func TestSubmitPassword(t *testing.T) {
	var mu sync.Mutex
	var refreshedID, refreshedTitle string
	s := newTestService(t, WithMetadataRefresh(func(id, title, _ string) {
		mu.Lock()
		refreshedID, refreshedTitle = id, title
		mu.Unlock()
	}))

	env := envelope(t, "# Midnight thoughts\ncould not sleep again", "pw")

	assert.False(t, s.SubmitPassword("e1", "wrong", env))
	assert.True(t, s.LastAttemptFailed("e1"))
	assert.False(t, s.HasCachedPassword("e1"))

	assert.True(t, s.SubmitPassword("e1", "pw", env))
	assert.False(t, s.LastAttemptFailed("e1"))
	assert.True(t, s.HasCachedPassword("e1"))

	mu.Lock()
	assert.Equal(t, "e1", refreshedID)
	assert.Equal(t, "Midnight thoughts", refreshedTitle)
	mu.Unlock()
}

func TestTryDecryptWithCache(t *testing.T) {
	s := newTestService(t)
	env := envelope(t, "cached content", "pw")

	// No cached password yet.
	assert.Nil(t, s.TryDecryptWithCache("e1", env))

	require.True(t, s.SubmitPassword("e1", "pw", env))
	got := s.TryDecryptWithCache("e1", env)
	require.NotNil(t, got)
	assert.Equal(t, "cached content", *got)

	// Content re-encrypted under a different password: the stale cache row
	// must be evicted, not retried forever.
	rotated := envelope(t, "cached content", "newpw")
	assert.Nil(t, s.TryDecryptWithCache("e1", rotated))
	assert.False(t, s.HasCachedPassword("e1"))
}

func TestBatchUnlockPartialSuccess(t *testing.T) {
	s := newTestService(t)

	entries := []EncryptedEntry{
		{ID: "a", Content: envelope(t, "first", "pw")},
		{ID: "b", Content: envelope(t, "second", "other")},
		{ID: "c", Content: envelope(t, "third", "pw")},
		{ID: "d", Content: "not an envelope"},
	}

	result := s.BatchUnlock("pw", entries)
	require.Len(t, result.Unlocked, 2)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "a", result.Unlocked[0].ID)
	assert.Equal(t, "first", result.Unlocked[0].Content)
	assert.Equal(t, "c", result.Unlocked[1].ID)
	assert.ElementsMatch(t, []string{"b", "d"}, result.Failed)

	assert.True(t, s.HasCachedPassword("a"))
	assert.False(t, s.HasCachedPassword("b"))
}

func TestCacheExpiry(t *testing.T) {
	s := newTestService(t, WithTimeout(time.Hour), WithFastPathWindow(0))

	current := time.Now()
	s.now = func() time.Time { return current }

	env := envelope(t, "expiring", "pw")
	require.True(t, s.SubmitPassword("e1", "pw", env))
	assert.True(t, s.HasCachedPassword("e1"))
	require.NotNil(t, s.CachedDecryptedContent("e1"))

	// Advance past the timeout: lazy checks see the row as gone even
	// without a cleanup tick.
	current = current.Add(2 * time.Hour)
	assert.Nil(t, s.CachedDecryptedContent("e1"))
	assert.False(t, s.HasCachedPassword("e1"))
}

func TestCleanupExpiredSweep(t *testing.T) {
	s := newTestService(t, WithTimeout(time.Hour))

	current := time.Now()
	s.now = func() time.Time { return current }

	require.True(t, s.SubmitPassword("old", "pw", envelope(t, "old", "pw")))
	current = current.Add(30 * time.Minute)
	require.True(t, s.SubmitPassword("fresh", "pw", envelope(t, "fresh", "pw")))

	current = current.Add(45 * time.Minute) // old: 75m idle, fresh: 45m idle
	assert.Equal(t, 1, s.CleanupExpired())
	assert.False(t, s.HasCachedPassword("old"))
	assert.True(t, s.HasCachedPassword("fresh"))
}

func TestCachedDecryptedContentFastPath(t *testing.T) {
	s := newTestService(t, WithTimeout(time.Hour), WithFastPathWindow(time.Minute))

	current := time.Now()
	s.now = func() time.Time { return current }

	require.True(t, s.SubmitPassword("e1", "pw", envelope(t, "hot content", "pw")))

	// Within the window the read skips the lastUsed write.
	current = current.Add(30 * time.Second)
	require.NotNil(t, s.CachedDecryptedContent("e1"))
	s.mu.Lock()
	lastUsed := s.cache["e1"].lastUsed
	s.mu.Unlock()
	assert.True(t, lastUsed.Equal(current.Add(-30*time.Second)))

	// Past the window the slow path updates bookkeeping.
	current = current.Add(5 * time.Minute)
	require.NotNil(t, s.CachedDecryptedContent("e1"))
	s.mu.Lock()
	lastUsed = s.cache["e1"].lastUsed
	s.mu.Unlock()
	assert.True(t, lastUsed.Equal(current))
}

func TestReconfigureReplacesSweep(t *testing.T) {
	s := newTestService(t, WithCleanupInterval(time.Hour))

	s.mu.Lock()
	old := s.sweepStop
	s.mu.Unlock()
	require.NotNil(t, old)

	s.Reconfigure(WithCleanupInterval(time.Minute))

	// The previous sweep's stop channel is closed, so its goroutine exits.
	select {
	case <-old:
	default:
		t.Fatal("previous sweep stop channel left open")
	}

	s.mu.Lock()
	replaced := s.sweepStop
	s.mu.Unlock()
	require.NotNil(t, replaced)

	// Concurrent reconfigures replace rather than stack: each superseded
	// stop channel gets closed, leaving exactly one live sweep.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Reconfigure(WithCleanupInterval(time.Minute))
		}()
	}
	wg.Wait()

	select {
	case <-replaced:
	default:
		t.Fatal("superseded sweep stop channel left open")
	}

	s.mu.Lock()
	final := s.sweepStop
	s.mu.Unlock()
	select {
	case <-final:
		t.Fatal("live sweep stop channel already closed")
	default:
	}
}

func TestLockClearsCache(t *testing.T) {
	s := newTestService(t)
	require.True(t, s.SubmitPassword("e1", "pw", envelope(t, "content", "pw")))

	s.Lock()
	assert.False(t, s.HasCachedPassword("e1"))
	assert.Nil(t, s.CachedDecryptedContent("e1"))
}
