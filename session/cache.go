package session

import (
	"strings"
	"time"

	"github.com/quillnotes/quill/entry"
)

// cacheRow is one entry's cached unlock state. Mutated only under the
// service mutex.
type cacheRow struct {
	password string
	content  string
	title    string
	preview  string
	cachedAt time.Time
	lastUsed time.Time
}

const cachedPreviewLen = 120

// EncryptedEntry pairs an entry id with its password-envelope content for
// batch unlocking.
type EncryptedEntry struct {
	ID      string
	Content string
}

// UnlockedEntry is one successful result from BatchUnlock.
type UnlockedEntry struct {
	ID      string
	Content string
}

// BatchResult partitions a batch unlock into successes and failures.
type BatchResult struct {
	Unlocked []UnlockedEntry
	Failed   []string
}

// HasCachedPassword reports whether entryID has a live (non-expired) cached
// password. Expiry is checked lazily, so this is accurate even between
// sweep ticks.
func (s *Service) HasCachedPassword(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.cache[entryID]
	if !ok {
		return false
	}
	if s.expiredLocked(row) {
		delete(s.cache, entryID)
		return false
	}
	return true
}

// SubmitPassword validates a user-supplied password against one entry's
// envelope. On success it caches the password and decrypted content and
// pushes the revealed title/preview to the metadata layer; on failure it
// records the failed attempt for UI feedback and caches nothing.
func (s *Service) SubmitPassword(entryID, password, encryptedContent string) bool {
	plain := entry.DecryptWithPassword(encryptedContent, password)
	if plain == nil {
		s.mu.Lock()
		s.lastFailed[entryID] = true
		s.mu.Unlock()
		return false
	}

	title, preview := projectContent(*plain)
	now := s.now()

	s.mu.Lock()
	s.cache[entryID] = &cacheRow{
		password: password,
		content:  *plain,
		title:    title,
		preview:  preview,
		cachedAt: now,
		lastUsed: now,
	}
	delete(s.lastFailed, entryID)
	refresh := s.refreshMeta
	s.mu.Unlock()

	if refresh != nil {
		refresh(entryID, title, preview)
	}
	return true
}

// LastAttemptFailed reports whether the most recent SubmitPassword for
// entryID failed. Cleared by the next success.
func (s *Service) LastAttemptFailed(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFailed[entryID]
}

// TryDecryptWithCache attempts decryption with the cached password, without
// prompting. A cryptographic failure evicts the stale row: a rotated
// password must not be retried silently forever.
func (s *Service) TryDecryptWithCache(entryID, encryptedContent string) *string {
	s.mu.Lock()
	row, ok := s.cache[entryID]
	if !ok || s.expiredLocked(row) {
		delete(s.cache, entryID)
		s.mu.Unlock()
		return nil
	}
	password := row.password
	s.mu.Unlock()

	plain := entry.DecryptWithPassword(encryptedContent, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	if plain == nil {
		delete(s.cache, entryID)
		return nil
	}
	if row, ok := s.cache[entryID]; ok {
		row.content = *plain
		row.lastUsed = s.now()
	}
	return plain
}

// BatchUnlock tries one password against many entries, partitioning them
// into unlocked and failed sets. It is a best-effort sweep: one failure
// never aborts the rest.
func (s *Service) BatchUnlock(password string, entries []EncryptedEntry) BatchResult {
	var result BatchResult
	for _, e := range entries {
		plain := entry.DecryptWithPassword(e.Content, password)
		if plain == nil {
			result.Failed = append(result.Failed, e.ID)
			continue
		}

		title, preview := projectContent(*plain)
		now := s.now()

		s.mu.Lock()
		s.cache[e.ID] = &cacheRow{
			password: password,
			content:  *plain,
			title:    title,
			preview:  preview,
			cachedAt: now,
			lastUsed: now,
		}
		delete(s.lastFailed, e.ID)
		refresh := s.refreshMeta
		s.mu.Unlock()

		if refresh != nil {
			refresh(e.ID, title, preview)
		}
		result.Unlocked = append(result.Unlocked, UnlockedEntry{ID: e.ID, Content: *plain})
	}
	return result
}

// CachedDecryptedContent returns cached plaintext for entryID if present.
// Rows used within the fast-path window are returned without the expiry
// re-check or a lastUsed write: slightly stale bookkeeping in exchange for
// a read-only hot path.
func (s *Service) CachedDecryptedContent(entryID string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.cache[entryID]
	if !ok || row.content == "" {
		return nil
	}

	now := s.now()
	if now.Sub(row.lastUsed) <= s.fastPathWindow {
		content := row.content
		return &content
	}

	if s.expiredLocked(row) {
		delete(s.cache, entryID)
		return nil
	}

	row.lastUsed = now
	content := row.content
	return &content
}

// CachedTitlePreview returns the cached decrypted title and preview, if any.
func (s *Service) CachedTitlePreview(entryID string) (title, preview string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, found := s.cache[entryID]
	if !found || s.expiredLocked(row) {
		return "", "", false
	}
	return row.title, row.preview, true
}

// CleanupExpired sweeps the cache and evicts every row whose lastUsed
// exceeds the session timeout. Called by the background timer and usable
// directly in tests.
func (s *Service) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, row := range s.cache {
		if s.expiredLocked(row) {
			delete(s.cache, id)
			evicted++
		}
	}
	return evicted
}

func (s *Service) expiredLocked(row *cacheRow) bool {
	return s.now().Sub(row.lastUsed) > s.timeout
}

func projectContent(content string) (title, preview string) {
	title = strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	title = strings.TrimLeft(title, "# ")

	flat := strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
	runes := []rune(flat)
	if len(runes) > cachedPreviewLen {
		runes = runes[:cachedPreviewLen]
	}
	return title, string(runes)
}
