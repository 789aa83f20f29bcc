// Package journal is the top-level entry-management façade: local CRUD
// against the active storage provider, the metadata index for listings, and
// delegation to the cloud layer for publish/sync. The UI talks to this
// package and nothing below it.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillnotes/quill/cloudsync"
	"github.com/quillnotes/quill/entry"
	"github.com/quillnotes/quill/internal/util"
	"github.com/quillnotes/quill/metacache"
	"github.com/quillnotes/quill/session"
	"github.com/quillnotes/quill/storage"
)

// ErrCloudDisabled is returned by cloud operations when the service was
// built without a cloud sync layer.
var ErrCloudDisabled = errors.New("cloud sync is not configured")

// Service composes the storage provider, metadata index, encryption
// session, and optional cloud layer into one API.
type Service struct {
	store storage.Provider
	meta  *metacache.Cache
	sess  *session.Service
	cloud *cloudsync.Service
	log   *slog.Logger

	now func() time.Time // test hook
}

// Option configures a Service.
type Option func(*Service)

// WithCloud attaches the cloud sync layer.
func WithCloud(c *cloudsync.Service) Option {
	return func(s *Service) { s.cloud = c }
}

// WithLogger replaces the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(store storage.Provider, meta *metacache.Cache, sess *session.Service, opts ...Option) *Service {
	s := &Service{
		store: store,
		meta:  meta,
		sess:  sess,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateEntry stores a new entry under an id minted from its title and
// indexes its metadata.
func (s *Service) CreateEntry(ctx context.Context, title, content string) (*storage.JournalEntry, error) {
	id, err := s.mintID(ctx, title)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &storage.JournalEntry{
		ID:         id,
		Title:      title,
		Content:    content,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := s.store.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("saving entry %s: %w", id, err)
	}
	if err := s.indexEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEntry replaces an entry's title and content, bumps its modification
// time, and regenerates its metadata row.
func (s *Service) UpdateEntry(ctx context.Context, id, title, content string) (*storage.JournalEntry, error) {
	e, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading entry %s: %w", id, err)
	}

	e.Title = title
	e.Content = content
	e.ModifiedAt = s.now().UTC()
	if err := s.store.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("saving entry %s: %w", id, err)
	}
	if err := s.indexEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEntry loads one entry's raw record. Content may be a password
// envelope; use DecryptedContent for the readable form.
func (s *Service) GetEntry(ctx context.Context, id string) (*storage.JournalEntry, error) {
	return s.store.Load(ctx, id)
}

// DecryptedContent returns the readable content of an entry: plaintext
// as-is, password envelopes through the session's cached password. Nil when
// the entry is locked and no cached password can open it.
func (s *Service) DecryptedContent(ctx context.Context, id string) (*string, error) {
	e, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.IsEncrypted(e.Content) {
		content := e.Content
		return &content, nil
	}
	return s.sess.TryDecryptWithCache(id, e.Content), nil
}

// DeleteEntry removes an entry locally and, when it is published, from the
// cloud first. The whole removal runs inside the entry's cloud lock, shared
// with publish and sync: a delete issued while a first publish is still in
// flight waits for it and then tears down the freshly created cloud row. A
// failed cloud delete aborts the local delete rather than orphaning the
// remote copy.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	deleteLocal := func(ctx context.Context) error {
		if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("deleting entry %s: %w", id, err)
		}
		if err := s.meta.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting metadata for %s: %w", id, err)
		}
		return nil
	}

	if s.cloud == nil {
		return deleteLocal(ctx)
	}
	_, _, err := s.cloud.RemoveEntry(ctx, id, deleteLocal)
	return err
}

// ListEntries returns entry metadata newest-modified first, without loading
// or decrypting any content.
func (s *Service) ListEntries(ctx context.Context) ([]metacache.Metadata, error) {
	return s.meta.List(ctx)
}

// PublishEntry delegates to the cloud layer.
func (s *Service) PublishEntry(ctx context.Context, id string, tagIDs []string) (*cloudsync.PublishResult, error) {
	if s.cloud == nil {
		return nil, ErrCloudDisabled
	}
	return s.cloud.PublishEntry(ctx, id, tagIDs)
}

// SyncEntryToCloud delegates to the cloud layer.
func (s *Service) SyncEntryToCloud(ctx context.Context, id string, tagIDs []string) (*cloudsync.SyncResult, error) {
	if s.cloud == nil {
		return nil, ErrCloudDisabled
	}
	return s.cloud.SyncEntryToCloud(ctx, id, tagIDs)
}

// UnpublishEntry delegates to the cloud layer.
func (s *Service) UnpublishEntry(ctx context.Context, id string) (bool, []cloudsync.StepResult, error) {
	if s.cloud == nil {
		return false, nil, ErrCloudDisabled
	}
	return s.cloud.UnpublishEntry(ctx, id)
}

// ImportCloudEntries delegates to the cloud layer.
func (s *Service) ImportCloudEntries(ctx context.Context) (int, error) {
	if s.cloud == nil {
		return 0, ErrCloudDisabled
	}
	return s.cloud.ImportCloudEntries(ctx)
}

// PerformBidirectionalSync delegates to the cloud layer.
func (s *Service) PerformBidirectionalSync(ctx context.Context) (cloudsync.SyncSummary, error) {
	if s.cloud == nil {
		return cloudsync.SyncSummary{}, ErrCloudDisabled
	}
	return s.cloud.PerformBidirectionalSync(ctx)
}

// SyncAfterLogin delegates to the cloud layer.
func (s *Service) SyncAfterLogin(ctx context.Context) (int, error) {
	if s.cloud == nil {
		return 0, ErrCloudDisabled
	}
	return s.cloud.SyncAfterLogin(ctx)
}

// PublishStatus reports an entry's publish state, StateLocalOnly when no
// cloud layer is configured.
func (s *Service) PublishStatus(id string) cloudsync.PublishState {
	if s.cloud == nil {
		return cloudsync.PublishState{Kind: cloudsync.StateLocalOnly}
	}
	return s.cloud.PublishStatus(id)
}

// indexEntry regenerates the metadata row for e, preserving cloud flags the
// index already knows. Password envelopes index with an empty preview; the
// session refresh callback fills it in after an unlock.
func (s *Service) indexEntry(ctx context.Context, e *storage.JournalEntry) error {
	md := &metacache.Metadata{
		ID:         e.ID,
		Title:      e.Title,
		CreatedAt:  e.CreatedAt,
		ModifiedAt: e.ModifiedAt,
		FilePath:   e.FilePath,
	}
	if !entry.IsEncrypted(e.Content) {
		md.Preview = metacache.Preview(e.Content)
	}
	if prev, err := s.meta.Get(ctx, e.ID); err == nil {
		md.IsPublished = prev.IsPublished
		md.IsShared = prev.IsShared
		md.CloudID = prev.CloudID
	}
	if err := s.meta.Upsert(ctx, md); err != nil {
		return fmt.Errorf("indexing entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *Service) mintID(ctx context.Context, title string) (string, error) {
	slug := util.Slugify(title)
	if slug == "" {
		slug = "entry"
	}
	exists, err := s.store.Exists(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("checking id %s: %w", slug, err)
	}
	if !exists {
		return slug, nil
	}
	return slug + "-" + uuid.NewString()[:8], nil
}
