package journal

import (
	"fmt"

	"github.com/quillnotes/quill/storage"
	"github.com/quillnotes/quill/storage/bolt"
	"github.com/quillnotes/quill/storage/fs"
)

// Backend selects the entry store implementation.
type Backend string

const (
	// BackendFS keeps one file per entry, the desktop-shell layout.
	BackendFS Backend = "fs"
	// BackendBolt keeps entries in a bbolt bucket, the browser-db analogue.
	BackendBolt Backend = "bolt"
)

// OpenProvider constructs the storage provider for the chosen backend at
// path (a directory for fs, a database file for bolt). The returned close
// function releases any held resources; for fs it is a no-op.
func OpenProvider(backend Backend, path string) (storage.Provider, func() error, error) {
	switch backend {
	case BackendFS:
		store, err := fs.New(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case BackendBolt:
		store, err := bolt.NewFromFile(path, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
