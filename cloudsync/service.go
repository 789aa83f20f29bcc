// Package cloudsync reconciles the local-first entry store against the
// remote cloud copy: publish, sync, unpublish, import, and bidirectional
// sweeps, with optimistic-concurrency conflict detection and per-entry
// serialization. Network failures are never retried here; a pluggable HTTP
// client is the place for a retry policy.
package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillnotes/quill/cloudmap"
	"github.com/quillnotes/quill/entry"
	"github.com/quillnotes/quill/internal/util"
	"github.com/quillnotes/quill/keys"
	"github.com/quillnotes/quill/locking"
	"github.com/quillnotes/quill/metacache"
	"github.com/quillnotes/quill/session"
	"github.com/quillnotes/quill/storage"
)

// TagDirectory resolves tag assignments to the users an entry should be
// shared with. Optional; without it publish/sync skip all sharing steps.
type TagDirectory interface {
	// SyncAssignments pushes the entry's tag list to the backend. Failures
	// are tolerated by callers; the caller-supplied tag list is the
	// fallback.
	SyncAssignments(ctx context.Context, entryID string, tagIDs []string) error

	// GranteesFor returns the users assigned to the given tags.
	GranteesFor(ctx context.Context, tagIDs []string) ([]Grantee, error)
}

// StepResult records the outcome of one best-effort sub-step (tag sync,
// per-grantee sharing, access revocation). A failed step never aborts the
// surrounding operation; it is reported here so callers can see what was
// skipped instead of grepping logs.
type StepResult struct {
	Step string
	Err  error
}

// OK reports whether the step succeeded.
func (r StepResult) OK() bool { return r.Err == nil }

// PublishResult is the outcome of PublishEntry.
type PublishResult struct {
	Published bool
	CloudID   string
	Steps     []StepResult
}

// SyncResult is the outcome of SyncEntryToCloud. Conflict means the remote
// copy was newer and no upload happened.
type SyncResult struct {
	Uploaded bool
	Conflict bool
	CloudID  string
	Steps    []StepResult
}

// SyncSummary tallies a bidirectional sweep.
type SyncSummary struct {
	Imported  int
	Uploaded  int
	Conflicts int
}

// StateKind enumerates an entry's publish state.
type StateKind int

const (
	StateLocalOnly StateKind = iota
	StatePublished
	StateUnpublishing
)

// PublishState is the explicit publish state of one entry. CloudID and
// LastServerTimestamp are only meaningful for StatePublished.
type PublishState struct {
	Kind                StateKind
	CloudID             string
	LastServerTimestamp time.Time
}

// Service orchestrates all cloud operations for the local store.
type Service struct {
	api       API
	sess      *session.Service
	store     storage.Provider
	meta      *metacache.Cache
	mappings  cloudmap.Repository
	locks     *locking.Manager
	conflicts *ConflictChecker
	tags      TagDirectory
	log       *slog.Logger

	unpubMu      sync.Mutex
	unpublishing map[string]struct{}

	now func() time.Time // test hook
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTagDirectory enables tag-based sharing.
func WithTagDirectory(d TagDirectory) ServiceOption {
	return func(s *Service) { s.tags = d }
}

// WithLogger replaces the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

func NewService(api API, sess *session.Service, store storage.Provider, meta *metacache.Cache,
	mappings cloudmap.Repository, locks *locking.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		api:          api,
		sess:         sess,
		store:        store,
		meta:         meta,
		mappings:     mappings,
		locks:        locks,
		log:          slog.Default(),
		unpublishing: make(map[string]struct{}),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.conflicts = NewConflictChecker(api, mappings, s.log)
	return s
}

// lockKey scopes the per-entry lock. One key per entry across publish,
// sync, and unpublish so all cloud mutations of an entry serialize.
func lockKey(entryID string) string { return "cloud:" + entryID }

// PublishEntry uploads a local entry to the cloud for the first time,
// owner-wrapped, and shares it with the users assigned to tagIDs. If the
// entry is already published it delegates to a sync instead, so re-publish
// is idempotent. Requires an unlocked encryption session.
func (s *Service) PublishEntry(ctx context.Context, entryID string, tagIDs []string) (*PublishResult, error) {
	if !s.sess.IsUnlocked() {
		return nil, ErrSessionLocked
	}

	var result *PublishResult
	err := s.locks.AcquireCloudLock(ctx, lockKey(entryID), func(ctx context.Context) error {
		r, err := s.publishLocked(ctx, entryID, tagIDs)
		result = r
		return err
	})
	return result, err
}

func (s *Service) publishLocked(ctx context.Context, entryID string, tagIDs []string) (*PublishResult, error) {
	if _, ok := s.mappings.ByLocalID(entryID); ok {
		sr, err := s.syncLocked(ctx, entryID, tagIDs)
		if err != nil {
			return nil, err
		}
		return &PublishResult{Published: sr.Uploaded, CloudID: sr.CloudID, Steps: sr.Steps}, nil
	}

	var steps []StepResult

	if s.tags != nil && len(tagIDs) > 0 {
		if err := s.tags.SyncAssignments(ctx, entryID, tagIDs); err != nil {
			s.log.Warn("tag assignment sync failed, using caller-supplied tags",
				"entry_id", entryID, "error", err)
			steps = append(steps, StepResult{Step: "tag-sync", Err: err})
		} else {
			steps = append(steps, StepResult{Step: "tag-sync"})
		}
	}

	e, err := s.store.Load(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("loading entry %s: %w", entryID, err)
	}

	frontmatter, body := splitFrontmatter(e.Content)
	content := entry.Content{
		Title:       e.Title,
		Content:     body,
		Frontmatter: frontmatter,
		Tags:        tagIDs,
	}

	payload, err := s.encryptFresh(content)
	if err != nil {
		return nil, err
	}

	metadata, err := encodeMetadata(payload)
	if err != nil {
		return nil, err
	}

	created, err := s.api.CreateEntry(ctx, &EntryUpsert{
		EncryptedTitle:       payload.EncryptedTitleB64,
		EncryptedContent:     payload.EncryptedContentB64,
		EncryptedFrontmatter: payload.EncryptedFrontmatterB64,
		EncryptionMetadata:   metadata,
		TitleHash:            entry.TitleHash(e.Title),
		ContentPreviewHash:   entry.PreviewHash(body),
		IsPublished:          true,
		FilePath:             e.FilePath,
		OwnerEncryptedKey:    payload.EncryptedEntryKeyB64,
		OwnerKeyNonce:        payload.KeyNonceB64,
		TagIDs:               tagIDs,
		ClientModifiedAt:     e.ModifiedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("publishing entry %s: %w", entryID, err)
	}

	if err := s.mappings.Put(cloudmap.Mapping{
		LocalID:             entryID,
		CloudID:             created.ID,
		PublishedAt:         s.now(),
		LastServerTimestamp: created.UpdatedAt,
	}); err != nil {
		return nil, fmt.Errorf("storing cloud mapping for %s: %w", entryID, err)
	}

	if err := s.meta.SetPublishState(ctx, entryID, true, created.ID); err != nil {
		s.log.Warn("metadata publish flag update failed", "entry_id", entryID, "error", err)
		steps = append(steps, StepResult{Step: "metadata-update", Err: err})
	}

	shareSteps := s.shareWithTags(ctx, entryID, created.ID,
		payload.EncryptedEntryKeyB64, payload.KeyNonceB64, tagIDs)
	steps = append(steps, shareSteps...)

	return &PublishResult{Published: true, CloudID: created.ID, Steps: steps}, nil
}

// shareWithTags re-wraps the entry key for every user assigned to the given
// tags and uploads the wrapped copies in one batch. Each grantee failure is
// swallowed individually so one bad grantee never aborts the rest.
func (s *Service) shareWithTags(ctx context.Context, entryID, cloudID, wrappedKeyB64, keyNonceB64 string, tagIDs []string) []StepResult {
	if s.tags == nil || len(tagIDs) == 0 {
		return nil
	}

	grantees, err := s.tags.GranteesFor(ctx, tagIDs)
	if err != nil {
		s.log.Warn("resolving tag grantees failed", "entry_id", entryID, "error", err)
		return []StepResult{{Step: "resolve-grantees", Err: err}}
	}
	if len(grantees) == 0 {
		return nil
	}

	var steps []StepResult
	var accessKeys []AccessKey
	for _, g := range grantees {
		rewrapped := s.rewrapFor(g.PublicKey, wrappedKeyB64, keyNonceB64)
		if rewrapped == nil {
			s.log.Warn("re-wrapping entry key for grantee failed",
				"entry_id", entryID, "user_id", g.UserID)
			steps = append(steps, StepResult{Step: "share:" + g.UserID,
				Err: fmt.Errorf("re-wrap failed for user %s", g.UserID)})
			continue
		}
		accessKeys = append(accessKeys, AccessKey{
			UserID:            g.UserID,
			EncryptedEntryKey: rewrapped.EncryptedEntryKeyB64,
			KeyNonce:          rewrapped.KeyNonceB64,
		})
		steps = append(steps, StepResult{Step: "share:" + g.UserID})
	}

	if len(accessKeys) == 0 {
		return steps
	}

	if err := s.api.CreateAccessKeys(ctx, cloudID, accessKeys); err != nil {
		s.log.Warn("uploading access keys failed", "entry_id", entryID, "error", err)
		steps = append(steps, StepResult{Step: "share-upload", Err: err})
		return steps
	}

	if err := s.meta.SetShared(ctx, entryID, true); err != nil {
		s.log.Warn("metadata shared flag update failed", "entry_id", entryID, "error", err)
	}
	return steps
}

// SyncEntryToCloud uploads local edits to an already published entry. The
// conflict check runs first and a newer remote copy aborts the upload; this
// is the system's entire conflict-avoidance strategy, there is no merge.
// The existing entry key is reused so grantees' wrapped copies stay valid.
func (s *Service) SyncEntryToCloud(ctx context.Context, entryID string, tagIDs []string) (*SyncResult, error) {
	if !s.sess.IsUnlocked() {
		return nil, ErrSessionLocked
	}

	var result *SyncResult
	err := s.locks.AcquireCloudLock(ctx, lockKey(entryID), func(ctx context.Context) error {
		r, err := s.syncLocked(ctx, entryID, tagIDs)
		result = r
		return err
	})
	return result, err
}

func (s *Service) syncLocked(ctx context.Context, entryID string, tagIDs []string) (*SyncResult, error) {
	mapping, ok := s.mappings.ByLocalID(entryID)
	if !ok {
		return &SyncResult{}, nil
	}

	e, err := s.store.Load(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("loading entry %s: %w", entryID, err)
	}

	check, err := s.conflicts.Check(ctx, entryID, e.ModifiedAt)
	if err != nil {
		return nil, err
	}
	if check.CloudID == "" {
		// Remote copy gone; the checker dropped the stale mapping.
		if metaErr := s.meta.SetPublishState(ctx, entryID, false, ""); metaErr != nil {
			s.log.Warn("metadata publish flag update failed", "entry_id", entryID, "error", metaErr)
		}
		return &SyncResult{}, nil
	}
	if check.HasConflict {
		s.log.Info("remote entry is newer, skipping upload",
			"entry_id", entryID, "cloud_id", check.CloudID,
			"remote_time", check.RemoteTime, "local_time", e.ModifiedAt)
		return &SyncResult{Conflict: true, CloudID: check.CloudID}, nil
	}

	remote, err := s.api.GetEntry(ctx, mapping.CloudID)
	if err != nil {
		return nil, fmt.Errorf("fetching cloud entry %s: %w", mapping.CloudID, err)
	}
	if remote.AccessKey == nil {
		return nil, fmt.Errorf("cloud entry %s: no access key for requester", mapping.CloudID)
	}

	steps := s.diffGrantees(ctx, entryID, remote, tagIDs)

	frontmatter, body := splitFrontmatter(e.Content)
	content := entry.Content{
		Title:       e.Title,
		Content:     body,
		Frontmatter: frontmatter,
		Tags:        tagIDs,
	}

	payload, err := s.encryptWithExistingKey(content,
		remote.AccessKey.EncryptedEntryKey, remote.AccessKey.KeyNonce)
	if err != nil {
		return nil, err
	}

	metadata, err := encodeMetadata(payload)
	if err != nil {
		return nil, err
	}

	since := mapping.LastServerTimestamp
	updated, err := s.api.UpdateEntry(ctx, mapping.CloudID, &EntryUpsert{
		EncryptedTitle:       payload.EncryptedTitleB64,
		EncryptedContent:     payload.EncryptedContentB64,
		EncryptedFrontmatter: payload.EncryptedFrontmatterB64,
		EncryptionMetadata:   metadata,
		TitleHash:            entry.TitleHash(e.Title),
		ContentPreviewHash:   entry.PreviewHash(body),
		IsPublished:          true,
		FilePath:             e.FilePath,
		OwnerEncryptedKey:    payload.EncryptedEntryKeyB64,
		OwnerKeyNonce:        payload.KeyNonceB64,
		TagIDs:               tagIDs,
		ClientModifiedAt:     e.ModifiedAt,
		IfUnmodifiedSince:    &since,
	})
	if errors.Is(err, ErrConflict) {
		// The precondition caught a write that landed between our check and
		// the PUT.
		return &SyncResult{Conflict: true, CloudID: mapping.CloudID, Steps: steps}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("uploading entry %s: %w", entryID, err)
	}

	if err := s.mappings.SetServerTimestamp(entryID, updated.UpdatedAt); err != nil {
		return nil, fmt.Errorf("updating server timestamp for %s: %w", entryID, err)
	}
	if err := s.meta.SetPublishState(ctx, entryID, true, mapping.CloudID); err != nil {
		s.log.Warn("metadata publish flag update failed", "entry_id", entryID, "error", err)
		steps = append(steps, StepResult{Step: "metadata-update", Err: err})
	}

	return &SyncResult{Uploaded: true, CloudID: mapping.CloudID, Steps: steps}, nil
}

// diffGrantees reconciles the entry's access keys with the users currently
// assigned to tagIDs: revokes removed grantees and wraps the key for new
// ones. Everything here is best-effort.
func (s *Service) diffGrantees(ctx context.Context, entryID string, remote *CloudEntry, tagIDs []string) []StepResult {
	if s.tags == nil || tagIDs == nil {
		return nil
	}

	desired, err := s.tags.GranteesFor(ctx, tagIDs)
	if err != nil {
		s.log.Warn("resolving tag grantees failed", "entry_id", entryID, "error", err)
		return []StepResult{{Step: "resolve-grantees", Err: err}}
	}
	desiredSet := make(map[string]Grantee, len(desired))
	for _, g := range desired {
		desiredSet[g.UserID] = g
	}

	current, err := s.api.ListAccessKeys(ctx, remote.ID)
	if err != nil {
		s.log.Warn("listing access keys failed", "entry_id", entryID, "error", err)
		return []StepResult{{Step: "list-access-keys", Err: err}}
	}

	var steps []StepResult
	currentSet := make(map[string]bool, len(current))
	for _, ak := range current {
		currentSet[ak.UserID] = true
		if ak.UserID == remote.AuthorID {
			continue
		}
		if _, still := desiredSet[ak.UserID]; still {
			continue
		}
		if err := s.api.RevokeAccessKey(ctx, remote.ID, ak.UserID); err != nil {
			s.log.Warn("revoking access key failed",
				"entry_id", entryID, "user_id", ak.UserID, "error", err)
			steps = append(steps, StepResult{Step: "revoke:" + ak.UserID, Err: err})
			continue
		}
		steps = append(steps, StepResult{Step: "revoke:" + ak.UserID})
	}

	var added []AccessKey
	for _, g := range desired {
		if currentSet[g.UserID] || g.UserID == remote.AuthorID {
			continue
		}
		rewrapped := s.rewrapFor(g.PublicKey,
			remote.AccessKey.EncryptedEntryKey, remote.AccessKey.KeyNonce)
		if rewrapped == nil {
			steps = append(steps, StepResult{Step: "share:" + g.UserID,
				Err: fmt.Errorf("re-wrap failed for user %s", g.UserID)})
			continue
		}
		added = append(added, AccessKey{
			UserID:            g.UserID,
			EncryptedEntryKey: rewrapped.EncryptedEntryKeyB64,
			KeyNonce:          rewrapped.KeyNonceB64,
		})
		steps = append(steps, StepResult{Step: "share:" + g.UserID})
	}
	if len(added) > 0 {
		if err := s.api.CreateAccessKeys(ctx, remote.ID, added); err != nil {
			s.log.Warn("uploading access keys failed", "entry_id", entryID, "error", err)
			steps = append(steps, StepResult{Step: "share-upload", Err: err})
		}
	}

	return steps
}

// UnpublishEntry revokes all sharing grants (best-effort), deletes the
// cloud copy, and removes the local mapping. It runs under the same
// per-entry lock as publish and sync so a rapid publish-then-unpublish
// cannot interleave.
func (s *Service) UnpublishEntry(ctx context.Context, entryID string) (bool, []StepResult, error) {
	var (
		removed bool
		steps   []StepResult
	)
	err := s.locks.AcquireCloudLock(ctx, lockKey(entryID), func(ctx context.Context) error {
		r, st, err := s.unpublishLocked(ctx, entryID)
		removed, steps = r, st
		return err
	})
	return removed, steps, err
}

// RemoveEntry tears down an entry completely: the cloud copy when one is
// mapped, then the caller's local cleanup, all inside the entry's cloud
// lock. Because publish and sync hold the same lock, a delete issued while a
// first publish is still in flight waits for it and then removes the freshly
// created cloud row; checking the publish state outside the lock would miss
// that row entirely. A failed cloud delete surfaces before deleteLocal runs,
// so the local copy survives rather than orphaning the remote one.
func (s *Service) RemoveEntry(ctx context.Context, entryID string, deleteLocal func(ctx context.Context) error) (bool, []StepResult, error) {
	var (
		removed bool
		steps   []StepResult
	)
	err := s.locks.AcquireCloudLock(ctx, lockKey(entryID), func(ctx context.Context) error {
		r, st, err := s.unpublishLocked(ctx, entryID)
		removed, steps = r, st
		if err != nil {
			return err
		}
		return deleteLocal(ctx)
	})
	return removed, steps, err
}

func (s *Service) unpublishLocked(ctx context.Context, entryID string) (bool, []StepResult, error) {
	mapping, ok := s.mappings.ByLocalID(entryID)
	if !ok {
		return false, nil, nil
	}

	s.unpubMu.Lock()
	s.unpublishing[entryID] = struct{}{}
	s.unpubMu.Unlock()
	defer func() {
		s.unpubMu.Lock()
		delete(s.unpublishing, entryID)
		s.unpubMu.Unlock()
	}()

	var steps []StepResult
	accessKeys, err := s.api.ListAccessKeys(ctx, mapping.CloudID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("listing access keys failed", "entry_id", entryID, "error", err)
		steps = append(steps, StepResult{Step: "list-access-keys", Err: err})
	}
	for _, ak := range accessKeys {
		if err := s.api.RevokeAccessKey(ctx, mapping.CloudID, ak.UserID); err != nil {
			s.log.Warn("revoking access key failed",
				"entry_id", entryID, "user_id", ak.UserID, "error", err)
			steps = append(steps, StepResult{Step: "revoke:" + ak.UserID, Err: err})
			continue
		}
		steps = append(steps, StepResult{Step: "revoke:" + ak.UserID})
	}

	if err := s.api.DeleteEntry(ctx, mapping.CloudID); err != nil && !errors.Is(err, ErrNotFound) {
		return false, steps, fmt.Errorf("deleting cloud entry %s: %w", mapping.CloudID, err)
	}

	if err := s.mappings.Remove(entryID); err != nil {
		return false, steps, fmt.Errorf("removing cloud mapping for %s: %w", entryID, err)
	}
	if err := s.meta.SetPublishState(ctx, entryID, false, ""); err != nil {
		s.log.Warn("metadata publish flag update failed", "entry_id", entryID, "error", err)
		steps = append(steps, StepResult{Step: "metadata-update", Err: err})
	}
	return true, steps, nil
}

// ImportCloudEntries pulls every decryptable self-authored cloud entry into
// the local store. Guarded by the global sync flag, not per-entry locks.
// One bad remote record never aborts the rest; it is logged and skipped.
func (s *Service) ImportCloudEntries(ctx context.Context) (int, error) {
	if !s.locks.BeginSync() {
		return 0, ErrSyncInProgress
	}
	defer s.locks.EndSync()

	return s.importEntries(ctx, nil)
}

func (s *Service) importEntries(ctx context.Context, prefetched []CloudEntry) (int, error) {
	if !s.sess.IsUnlocked() {
		return 0, ErrSessionLocked
	}

	me, err := s.api.Me(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving own identity: %w", err)
	}
	sessionKey := encodePublicKey(s.sess.PublicKey())

	entries := prefetched
	if entries == nil {
		entries, err = s.api.ListEntries(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing cloud entries: %w", err)
		}
	}

	imported := 0
	for i := range entries {
		if s.importOne(ctx, &entries[i], me.ID, sessionKey) {
			imported++
		}
	}
	return imported, nil
}

// importOne brings a single remote entry into the local store. Only entries
// this identity authored are importable: a foreign author's row carries a
// share-wrap, not an owner-wrap, and the identity check also rejects rows
// wrapped to a key pair other than the session's.
func (s *Service) importOne(ctx context.Context, e *CloudEntry, myID, sessionKey string) bool {
	if e.AuthorID != myID || e.AuthorPublicKeyB64 != sessionKey {
		return false
	}

	payload, err := decodePayload(e)
	if err != nil {
		s.log.Warn("skipping undecodable cloud entry", "cloud_id", e.ID, "error", err)
		return false
	}

	var content *entry.Content
	used, err := s.sess.UseKeyPair(func(pair keys.UserKeyPair) error {
		content = entry.DecryptEntry(payload, pair.Secret, pair.Public)
		return nil
	})
	if err != nil || !used || content == nil {
		s.log.Warn("skipping undecryptable cloud entry", "cloud_id", e.ID)
		return false
	}

	localID := ""
	if m, ok := s.mappings.ByCloudID(e.ID); ok {
		localID = m.LocalID
		if !e.UpdatedAt.After(m.LastServerTimestamp) {
			// Nothing new remotely.
			return false
		}
		if local, loadErr := s.store.Load(ctx, localID); loadErr == nil && local.ModifiedAt.After(m.LastServerTimestamp) {
			// Local edits are pending; the conflict-checked upload path
			// decides what happens to this entry, not a blind overwrite.
			s.log.Info("skipping import over unsynced local edits",
				"local_id", localID, "cloud_id", e.ID)
			return false
		}
	} else {
		localID, err = s.mintLocalID(ctx, content.Title)
		if err != nil {
			s.log.Warn("minting local id failed", "cloud_id", e.ID, "error", err)
			return false
		}
	}

	record := &storage.JournalEntry{
		ID:         localID,
		Title:      content.Title,
		Content:    joinFrontmatter(content.Frontmatter, content.Content),
		CreatedAt:  e.CreatedAt,
		ModifiedAt: e.UpdatedAt,
		FilePath:   e.FilePath,
	}
	if err := s.store.Save(ctx, record); err != nil {
		s.log.Warn("persisting imported entry failed", "cloud_id", e.ID, "local_id", localID, "error", err)
		return false
	}

	if err := s.meta.Upsert(ctx, &metacache.Metadata{
		ID:          localID,
		Title:       content.Title,
		Preview:     metacache.Preview(content.Content),
		CreatedAt:   e.CreatedAt,
		ModifiedAt:  e.UpdatedAt,
		FilePath:    record.FilePath,
		IsPublished: true,
		CloudID:     e.ID,
	}); err != nil {
		s.log.Warn("indexing imported entry failed", "local_id", localID, "error", err)
	}

	if err := s.mappings.Put(cloudmap.Mapping{
		LocalID:             localID,
		CloudID:             e.ID,
		PublishedAt:         e.CreatedAt,
		LastServerTimestamp: e.UpdatedAt,
	}); err != nil {
		s.log.Warn("recording cloud mapping failed", "local_id", localID, "error", err)
	}

	return true
}

// mintLocalID derives a unique local id from a decrypted title, falling
// back to a random suffix when the slug is taken.
func (s *Service) mintLocalID(ctx context.Context, title string) (string, error) {
	slug := util.Slugify(title)
	if slug == "" {
		slug = "entry"
	}

	exists, err := s.store.Exists(ctx, slug)
	if err != nil {
		return "", err
	}
	if !exists {
		return slug, nil
	}
	return slug + "-" + uuid.NewString()[:8], nil
}

// PerformBidirectionalSync imports remote entries first, then uploads every
// locally mapped entry that passes the conflict check. Per-item failures
// are tallied, not fatal.
func (s *Service) PerformBidirectionalSync(ctx context.Context) (SyncSummary, error) {
	if !s.locks.BeginSync() {
		return SyncSummary{}, ErrSyncInProgress
	}
	defer s.locks.EndSync()

	var summary SyncSummary
	imported, err := s.importEntries(ctx, nil)
	summary.Imported = imported
	if err != nil {
		return summary, err
	}

	mappings, err := s.mappings.All()
	if err != nil {
		return summary, fmt.Errorf("listing cloud mappings: %w", err)
	}

	for _, m := range mappings {
		var result *SyncResult
		err := s.locks.AcquireCloudLock(ctx, lockKey(m.LocalID), func(ctx context.Context) error {
			r, err := s.syncLocked(ctx, m.LocalID, nil)
			result = r
			return err
		})
		if err != nil {
			s.log.Warn("upload during bidirectional sync failed",
				"local_id", m.LocalID, "error", err)
			continue
		}
		switch {
		case result.Conflict:
			summary.Conflicts++
		case result.Uploaded:
			summary.Uploaded++
		}
	}
	return summary, nil
}

// SyncAfterLogin imports cloud entries once per login, but only when the
// account actually has entries and the encryption session is unlocked.
// Otherwise it is a deliberate no-op: no needless network or crypto work on
// every login.
func (s *Service) SyncAfterLogin(ctx context.Context) (int, error) {
	if !s.sess.IsUnlocked() {
		return 0, nil
	}

	entries, err := s.api.ListEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing cloud entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if !s.locks.BeginSync() {
		return 0, ErrSyncInProgress
	}
	defer s.locks.EndSync()

	return s.importEntries(ctx, entries)
}

// PublishStatus reports the explicit publish state of one entry.
func (s *Service) PublishStatus(entryID string) PublishState {
	s.unpubMu.Lock()
	_, unpublishing := s.unpublishing[entryID]
	s.unpubMu.Unlock()
	if unpublishing {
		return PublishState{Kind: StateUnpublishing}
	}

	if m, ok := s.mappings.ByLocalID(entryID); ok {
		return PublishState{
			Kind:                StatePublished,
			CloudID:             m.CloudID,
			LastServerTimestamp: m.LastServerTimestamp,
		}
	}
	return PublishState{Kind: StateLocalOnly}
}

func (s *Service) encryptFresh(c entry.Content) (*entry.EncryptedPayload, error) {
	var payload *entry.EncryptedPayload
	used, err := s.sess.UseKeyPair(func(pair keys.UserKeyPair) error {
		p, err := entry.EncryptEntry(c, pair)
		payload = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("encrypting entry: %w", err)
	}
	if !used {
		return nil, ErrSessionLocked
	}
	return payload, nil
}

func (s *Service) encryptWithExistingKey(c entry.Content, wrappedKeyB64, keyNonceB64 string) (*entry.EncryptedPayload, error) {
	var payload *entry.EncryptedPayload
	used, err := s.sess.UseKeyPair(func(pair keys.UserKeyPair) error {
		p, err := entry.EncryptEntryWithExistingKey(c, wrappedKeyB64, keyNonceB64, pair)
		payload = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("re-encrypting entry: %w", err)
	}
	if !used {
		return nil, ErrSessionLocked
	}
	return payload, nil
}

func (s *Service) rewrapFor(recipient [32]byte, wrappedKeyB64, keyNonceB64 string) *entry.RewrappedKey {
	var rewrapped *entry.RewrappedKey
	used, err := s.sess.UseKeyPair(func(pair keys.UserKeyPair) error {
		rewrapped = entry.RewrapEntryKey(wrappedKeyB64, keyNonceB64, pair, recipient)
		return nil
	})
	if err != nil || !used {
		return nil
	}
	return rewrapped
}

// splitFrontmatter separates a leading YAML block delimited by --- lines
// from the body. Content without a block passes through unchanged.
func splitFrontmatter(content string) (frontmatter, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}
	rest := content[len("---\n"):]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", content
	}
	frontmatter = rest[:idx]
	body = strings.TrimPrefix(rest[idx+len("\n---"):], "\n")
	return frontmatter, body
}

func joinFrontmatter(frontmatter, body string) string {
	if frontmatter == "" {
		return body
	}
	return "---\n" + frontmatter + "\n---\n" + body
}
