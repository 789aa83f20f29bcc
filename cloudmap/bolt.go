package cloudmap

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var mappingsBucket = []byte("cloud_mappings")

// BoltRepository persists mappings in a BBolt bucket with a write-through
// in-memory cache: reads come from the map, writes land in BBolt first and
// then update the map.
type BoltRepository struct {
	db      *bbolt.DB
	mu      sync.RWMutex
	byLocal map[string]Mapping
	byCloud map[string]string
}

var _ Repository = (*BoltRepository)(nil)

// NewBoltRepository loads all existing mappings from db into the cache.
func NewBoltRepository(db *bbolt.DB) (*BoltRepository, error) {
	r := &BoltRepository{
		db:      db,
		byLocal: make(map[string]Mapping),
		byCloud: make(map[string]string),
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(mappingsBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(_, v []byte) error {
			var m Mapping
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			r.byLocal[m.LocalID] = m
			r.byCloud[m.CloudID] = m.LocalID
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading cloud mappings: %w", err)
	}
	return r, nil
}

// NewBoltRepositoryFromFile opens a BBolt database at path.
func NewBoltRepositoryFromFile(path string, options *bbolt.Options) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening mapping db: %w", err)
	}
	return NewBoltRepository(db)
}

// Close closes the underlying database.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func (r *BoltRepository) Put(m Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.persist(m); err != nil {
		return err
	}
	if old, ok := r.byLocal[m.LocalID]; ok && old.CloudID != m.CloudID {
		delete(r.byCloud, old.CloudID)
	}
	r.byLocal[m.LocalID] = m
	r.byCloud[m.CloudID] = m.LocalID
	return nil
}

func (r *BoltRepository) ByLocalID(localID string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byLocal[localID]
	return m, ok
}

func (r *BoltRepository) ByCloudID(cloudID string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	localID, ok := r.byCloud[cloudID]
	if !ok {
		return Mapping{}, false
	}
	return r.byLocal[localID], true
}

func (r *BoltRepository) Remove(localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(mappingsBucket).Delete([]byte(localID))
	})
	if err != nil {
		return fmt.Errorf("removing mapping for %s: %w", localID, err)
	}
	if m, ok := r.byLocal[localID]; ok {
		delete(r.byCloud, m.CloudID)
		delete(r.byLocal, localID)
	}
	return nil
}

func (r *BoltRepository) SetServerTimestamp(localID string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byLocal[localID]
	if !ok {
		return nil
	}
	m.LastServerTimestamp = ts
	if err := r.persist(m); err != nil {
		return err
	}
	r.byLocal[localID] = m
	return nil
}

func (r *BoltRepository) All() ([]Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mapping, 0, len(r.byLocal))
	for _, m := range r.byLocal {
		out = append(out, m)
	}
	return out, nil
}

func (r *BoltRepository) persist(m Mapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding mapping for %s: %w", m.LocalID, err)
	}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(mappingsBucket).Put([]byte(m.LocalID), data)
	})
	if err != nil {
		return fmt.Errorf("persisting mapping for %s: %w", m.LocalID, err)
	}
	return nil
}
