// Package cloudmap persists the local-id to cloud-id translation table,
// the sole bridge between the local-first store and its remote copy. Each
// row also carries the last observed server timestamp, which is all the
// optimistic-concurrency conflict check needs (a single scalar, not a
// vector clock).
package cloudmap

import (
	"sync"
	"time"
)

// Mapping links one local entry to its cloud copy.
type Mapping struct {
	LocalID             string    `json:"local_id"`
	CloudID             string    `json:"cloud_id"`
	PublishedAt         time.Time `json:"published_at"`
	LastServerTimestamp time.Time `json:"last_server_timestamp"`
}

// Repository stores cloud mappings. All mutations are idempotent puts;
// Remove is the unpublish / remote-404 cleanup path.
type Repository interface {
	Put(m Mapping) error
	ByLocalID(localID string) (Mapping, bool)
	ByCloudID(cloudID string) (Mapping, bool)
	Remove(localID string) error
	SetServerTimestamp(localID string, ts time.Time) error
	All() ([]Mapping, error)
}

// MemoryRepository is an in-memory implementation suitable for tests and
// ephemeral sessions.
type MemoryRepository struct {
	mu      sync.RWMutex
	byLocal map[string]Mapping
	byCloud map[string]string
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byLocal: make(map[string]Mapping),
		byCloud: make(map[string]string),
	}
}

func (r *MemoryRepository) Put(m Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byLocal[m.LocalID]; ok && old.CloudID != m.CloudID {
		delete(r.byCloud, old.CloudID)
	}
	r.byLocal[m.LocalID] = m
	r.byCloud[m.CloudID] = m.LocalID
	return nil
}

func (r *MemoryRepository) ByLocalID(localID string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byLocal[localID]
	return m, ok
}

func (r *MemoryRepository) ByCloudID(cloudID string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	localID, ok := r.byCloud[cloudID]
	if !ok {
		return Mapping{}, false
	}
	return r.byLocal[localID], true
}

func (r *MemoryRepository) Remove(localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byLocal[localID]; ok {
		delete(r.byCloud, m.CloudID)
		delete(r.byLocal, localID)
	}
	return nil
}

func (r *MemoryRepository) SetServerTimestamp(localID string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byLocal[localID]; ok {
		m.LastServerTimestamp = ts
		r.byLocal[localID] = m
	}
	return nil
}

func (r *MemoryRepository) All() ([]Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mapping, 0, len(r.byLocal))
	for _, m := range r.byLocal {
		out = append(out, m)
	}
	return out, nil
}
