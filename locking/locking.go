// Package locking provides the named-lock primitive that serializes
// concurrent cloud operations. Operations registered under the same key run
// one at a time in arrival order; unrelated keys run fully in parallel. A
// single global in-progress flag additionally guards whole-store sweeps
// (import, bidirectional sync) against each other.
package locking

import (
	"context"
	"sync"
)

// Manager serializes operations per key and tracks the global sync flag.
// The zero value is not usable; call NewManager.
type Manager struct {
	mu             sync.Mutex
	tails          map[string]chan struct{}
	pending        map[string]int
	syncInProgress bool
}

// Status is a snapshot of the manager's bookkeeping for UI/diagnostics.
type Status struct {
	InProgress       bool
	ActiveOperations []string
}

func NewManager() *Manager {
	return &Manager{
		tails:   make(map[string]chan struct{}),
		pending: make(map[string]int),
	}
}

// AcquireCloudLock runs op once every previously queued operation under key
// has finished. The lock is released even when op returns an error or
// panics. Queued operations execute in FIFO order and never overlap.
func (m *Manager) AcquireCloudLock(ctx context.Context, key string, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})

	m.mu.Lock()
	prev := m.tails[key]
	m.tails[key] = done
	m.pending[key]++
	m.mu.Unlock()

	defer func() {
		close(done)
		m.mu.Lock()
		if m.pending[key] > 0 {
			m.pending[key]--
		}
		if m.pending[key] == 0 {
			delete(m.pending, key)
		}
		if m.tails[key] == done {
			delete(m.tails, key)
		}
		m.mu.Unlock()
	}()

	// Await the predecessor unconditionally: the contract is serialize, not
	// reject, and a queued caller that bailed out early would let its
	// successor overlap with a still-running predecessor.
	if prev != nil {
		<-prev
	}

	return op(ctx)
}

// SetSyncInProgress sets the global bulk-sync flag.
func (m *Manager) SetSyncInProgress(v bool) {
	m.mu.Lock()
	m.syncInProgress = v
	m.mu.Unlock()
}

// IsSyncInProgress reports the global bulk-sync flag.
func (m *Manager) IsSyncInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncInProgress
}

// BeginSync atomically checks and sets the global flag. It returns false if
// a bulk sync is already running.
func (m *Manager) BeginSync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncInProgress {
		return false
	}
	m.syncInProgress = true
	return true
}

// EndSync clears the global flag.
func (m *Manager) EndSync() {
	m.SetSyncInProgress(false)
}

// SyncStatus returns the in-progress flag and the keys with registered
// operations.
func (m *Manager) SyncStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.pending))
	for k := range m.pending {
		keys = append(keys, k)
	}
	return Status{InProgress: m.syncInProgress, ActiveOperations: keys}
}

// CancelSyncOperations discards lock bookkeeping and clears the global
// flag. It does NOT cancel in-flight operations: work that already started
// runs to completion and its effects still land; only the serialization
// chain is forgotten, so operations queued afterwards will not wait on it.
func (m *Manager) CancelSyncOperations() {
	m.mu.Lock()
	m.tails = make(map[string]chan struct{})
	m.pending = make(map[string]int)
	m.syncInProgress = false
	m.mu.Unlock()
}
