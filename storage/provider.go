// Package storage defines the environment-specific entry store abstraction.
// The desktop shell persists one file per entry; the web runtime persists a
// keyed table. Both are hidden behind Provider, selected at construction.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an entry id has no stored record.
var ErrNotFound = errors.New("entry not found")

// JournalEntry is the raw local record for one entry. Content may be
// plaintext or a password envelope; the store does not care which.
type JournalEntry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	FilePath   string    `json:"file_path"`
}

// Provider is the CRUD surface for raw entry content. Save is an upsert;
// implementations must treat the entry id as the sole key.
type Provider interface {
	Save(ctx context.Context, e *JournalEntry) error
	Load(ctx context.Context, id string) (*JournalEntry, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]JournalEntry, error)
	Exists(ctx context.Context, id string) (bool, error)
}
