// Package fs implements storage.Provider with one JSON document per entry
// under a base directory, the desktop-shell layout.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quillnotes/quill/storage"
)

const entryExt = ".json"

// Store is a filesystem-backed entry store.
type Store struct {
	dir string
}

var _ storage.Provider = (*Store)(nil)

// New creates the base directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating entry directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+entryExt)
}

func (s *Store) Save(ctx context.Context, e *storage.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.FilePath == "" {
		e.FilePath = e.ID + entryExt
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding entry %s: %w", e.ID, err)
	}

	// Write-then-rename so a crash mid-write never truncates an entry.
	tmp := s.path(e.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing entry %s: %w", e.ID, err)
	}
	if err := os.Rename(tmp, s.path(e.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*storage.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", id, err)
	}
	var e storage.JournalEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding entry %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return err
}

func (s *Store) List(ctx context.Context) ([]storage.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing entry directory: %w", err)
	}

	var entries []storage.JournalEntry
	for _, n := range names {
		if n.IsDir() || !strings.HasSuffix(n.Name(), entryExt) {
			continue
		}
		id := strings.TrimSuffix(n.Name(), entryExt)
		e, err := s.Load(ctx, id)
		if err != nil {
			continue // skip unreadable files rather than failing the listing
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
