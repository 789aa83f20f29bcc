package cloudsync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeAPI is an in-memory stand-in for the cloud backend, with enough
// server semantics (id assignment, updated_at, if_unmodified_since, access
// keys) to drive the service.
type fakeAPI struct {
	mu      sync.Mutex
	me      Account
	entries map[string]*CloudEntry
	access  map[string]map[string]AccessKey
	nextID  int
	clock   time.Time

	puts    int
	gets    int
	deletes int

	// Optional create hooks, set before any concurrency: createEntered
	// signals that CreateEntry has been reached, createGate suspends it
	// until closed.
	createEntered chan struct{}
	createGate    chan struct{}
}

var _ API = (*fakeAPI)(nil)

func newFakeAPI(me Account) *fakeAPI {
	return &fakeAPI{
		me:      me,
		entries: make(map[string]*CloudEntry),
		access:  make(map[string]map[string]AccessKey),
		clock:   time.Now().UTC().Truncate(time.Second),
	}
}

func (f *fakeAPI) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeAPI) Me(context.Context) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	me := f.me
	return &me, nil
}

func (f *fakeAPI) CreateEntry(_ context.Context, req *EntryUpsert) (*CloudEntry, error) {
	if f.createEntered != nil {
		f.createEntered <- struct{}{}
	}
	if f.createGate != nil {
		<-f.createGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	now := f.tick()
	e := &CloudEntry{
		ID:                   fmt.Sprintf("c-%d", f.nextID),
		AuthorID:             f.me.ID,
		AuthorPublicKeyB64:   f.me.PublicKeyB64,
		EncryptedTitle:       req.EncryptedTitle,
		EncryptedContent:     req.EncryptedContent,
		EncryptedFrontmatter: req.EncryptedFrontmatter,
		EncryptionMetadata:   req.EncryptionMetadata,
		TitleHash:            req.TitleHash,
		ContentPreviewHash:   req.ContentPreviewHash,
		IsPublished:          req.IsPublished,
		FilePath:             req.FilePath,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	f.entries[e.ID] = e
	f.access[e.ID] = map[string]AccessKey{
		f.me.ID: {
			EntryID:           e.ID,
			UserID:            f.me.ID,
			EncryptedEntryKey: req.OwnerEncryptedKey,
			KeyNonce:          req.OwnerKeyNonce,
			CreatedAt:         now,
		},
	}
	return f.withAccessKey(e), nil
}

func (f *fakeAPI) GetEntry(_ context.Context, cloudID string) (*CloudEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	e, ok := f.entries[cloudID]
	if !ok {
		return nil, ErrNotFound
	}
	return f.withAccessKey(e), nil
}

func (f *fakeAPI) UpdateEntry(_ context.Context, cloudID string, req *EntryUpsert) (*CloudEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[cloudID]
	if !ok {
		return nil, ErrNotFound
	}
	if req.IfUnmodifiedSince != nil && e.UpdatedAt.After(*req.IfUnmodifiedSince) {
		return nil, ErrConflict
	}

	f.puts++
	e.EncryptedTitle = req.EncryptedTitle
	e.EncryptedContent = req.EncryptedContent
	e.EncryptedFrontmatter = req.EncryptedFrontmatter
	e.EncryptionMetadata = req.EncryptionMetadata
	e.TitleHash = req.TitleHash
	e.ContentPreviewHash = req.ContentPreviewHash
	e.FilePath = req.FilePath
	e.UpdatedAt = f.tick()
	return f.withAccessKey(e), nil
}

func (f *fakeAPI) DeleteEntry(_ context.Context, cloudID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[cloudID]; !ok {
		return ErrNotFound
	}
	f.deletes++
	delete(f.entries, cloudID)
	delete(f.access, cloudID)
	return nil
}

func (f *fakeAPI) ListEntries(context.Context) ([]CloudEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CloudEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, *f.withAccessKey(e))
	}
	return out, nil
}

func (f *fakeAPI) CreateAccessKeys(_ context.Context, cloudID string, accessKeys []AccessKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys, ok := f.access[cloudID]
	if !ok {
		return ErrNotFound
	}
	now := f.tick()
	for _, ak := range accessKeys {
		ak.EntryID = cloudID
		ak.CreatedAt = now
		keys[ak.UserID] = ak
	}
	return nil
}

func (f *fakeAPI) ListAccessKeys(_ context.Context, cloudID string) ([]AccessKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys, ok := f.access[cloudID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]AccessKey, 0, len(keys))
	for _, ak := range keys {
		out = append(out, ak)
	}
	return out, nil
}

func (f *fakeAPI) RevokeAccessKey(_ context.Context, cloudID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys, ok := f.access[cloudID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := keys[userID]; !ok {
		return ErrNotFound
	}
	delete(keys, userID)
	return nil
}

// withAccessKey attaches the requesting identity's wrapped key, the way the
// real API shapes its responses. Callers hold the mutex.
func (f *fakeAPI) withAccessKey(e *CloudEntry) *CloudEntry {
	out := *e
	if ak, ok := f.access[e.ID][f.me.ID]; ok {
		out.AccessKey = &ak
	}
	return &out
}

// setUpdatedAt rewrites an entry's server timestamp, simulating an upload
// from another client.
func (f *fakeAPI) setUpdatedAt(cloudID string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[cloudID]; ok {
		e.UpdatedAt = ts
	}
}

func (f *fakeAPI) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}
