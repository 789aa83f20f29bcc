package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/quillnotes/quill/internal/util"
)

var (
	// ErrNotFound is returned for missing accounts, entries, or keys.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when registering an email twice.
	ErrEmailTaken = errors.New("email already registered")
)

var (
	bucketAccounts   = []byte("accounts")
	bucketEmails     = []byte("emails")
	bucketEntries    = []byte("entries")
	bucketAccessKeys = []byte("access_keys")
)

// accountRecord is the stored form of an account. The password is an
// argon2id hash; the public key is the client's X25519 public key, stored
// so other clients can wrap entry keys to it.
type accountRecord struct {
	ID           string              `json:"id"`
	Email        string              `json:"email"`
	PublicKey    string              `json:"public_key"`
	PasswordSalt []byte              `json:"password_salt"`
	PasswordHash []byte              `json:"password_hash"`
	PasswordKDF  util.Argon2idParams `json:"password_kdf"`
	CreatedAt    time.Time           `json:"created_at"`
}

// entryRecord is the stored form of a cloud entry. All content fields are
// opaque ciphertext.
type entryRecord struct {
	ID                   string    `json:"id"`
	AuthorID             string    `json:"author_id"`
	EncryptedTitle       string    `json:"encrypted_title"`
	EncryptedContent     string    `json:"encrypted_content"`
	EncryptedFrontmatter string    `json:"encrypted_frontmatter,omitempty"`
	EncryptionMetadata   string    `json:"encryption_metadata"`
	TitleHash            string    `json:"title_hash"`
	ContentPreviewHash   string    `json:"content_preview_hash,omitempty"`
	IsPublished          bool      `json:"is_published"`
	FilePath             string    `json:"file_path,omitempty"`
	TagIDs               []string  `json:"tag_ids,omitempty"`
	ClientModifiedAt     time.Time `json:"client_modified_at"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// accessKeyRecord is one user's wrapped copy of an entry's symmetric key.
type accessKeyRecord struct {
	EntryID           string    `json:"entry_id"`
	UserID            string    `json:"user_id"`
	EncryptedEntryKey string    `json:"encrypted_entry_key"`
	KeyNonce          string    `json:"key_nonce"`
	CreatedAt         time.Time `json:"created_at"`
}

// Store is the server's bbolt persistence layer.
type Store struct {
	db *bbolt.DB
}

// NewStore prepares the buckets on an open database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketEmails, bucketEntries, bucketAccessKeys} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens (or creates) the database file at path.
func NewStoreFromFile(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return NewStore(db)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount persists a new account, enforcing email uniqueness.
func (s *Store) CreateAccount(rec accountRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(bucketEmails)
		key := []byte(strings.ToLower(rec.Email))
		if emails.Get(key) != nil {
			return ErrEmailTaken
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAccounts).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		return emails.Put(key, []byte(rec.ID))
	})
}

// AccountByEmail looks up an account by its (case-insensitive) email.
func (s *Store) AccountByEmail(email string) (*accountRecord, error) {
	var rec *accountRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketEmails).Get([]byte(strings.ToLower(email)))
		if id == nil {
			return ErrNotFound
		}
		return decodeInto(tx.Bucket(bucketAccounts).Get(id), &rec)
	})
	return rec, err
}

// AccountByID looks up an account by id.
func (s *Store) AccountByID(id string) (*accountRecord, error) {
	var rec *accountRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return decodeInto(tx.Bucket(bucketAccounts).Get([]byte(id)), &rec)
	})
	return rec, err
}

// PutEntry writes or replaces an entry record.
func (s *Store) PutEntry(rec entryRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEntries).Put([]byte(rec.ID), data)
	})
}

// GetEntry loads one entry record.
func (s *Store) GetEntry(id string) (*entryRecord, error) {
	var rec *entryRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return decodeInto(tx.Bucket(bucketEntries).Get([]byte(id)), &rec)
	})
	return rec, err
}

// DeleteEntry removes an entry and every access key hanging off it.
func (s *Store) DeleteEntry(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		if entries.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := entries.Delete([]byte(id)); err != nil {
			return err
		}

		keys := tx.Bucket(bucketAccessKeys)
		c := keys.Cursor()
		prefix := []byte(id + "/")
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			if err := keys.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListEntriesFor returns every entry the user authored or holds an access
// key for.
func (s *Store) ListEntriesFor(userID string) ([]entryRecord, error) {
	var out []entryRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(bucketAccessKeys)
		return tx.Bucket(bucketEntries).ForEach(func(_, v []byte) error {
			var rec entryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.AuthorID == userID || keys.Get(accessKeyKey(rec.ID, userID)) != nil {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

// PutAccessKeys stores wrapped keys, replacing any existing row per
// (entry, user).
func (s *Store) PutAccessKeys(recs []accessKeyRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAccessKeys)
		for _, rec := range recs {
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := bucket.Put(accessKeyKey(rec.EntryID, rec.UserID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// AccessKey loads one user's wrapped key for an entry.
func (s *Store) AccessKey(entryID, userID string) (*accessKeyRecord, error) {
	var rec *accessKeyRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return decodeInto(tx.Bucket(bucketAccessKeys).Get(accessKeyKey(entryID, userID)), &rec)
	})
	return rec, err
}

// ListAccessKeys returns every access key of one entry.
func (s *Store) ListAccessKeys(entryID string) ([]accessKeyRecord, error) {
	var out []accessKeyRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAccessKeys).Cursor()
		prefix := []byte(entryID + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var rec accessKeyRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// DeleteAccessKey revokes one user's wrapped key.
func (s *Store) DeleteAccessKey(entryID, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAccessKeys)
		key := accessKeyKey(entryID, userID)
		if bucket.Get(key) == nil {
			return ErrNotFound
		}
		return bucket.Delete(key)
	})
}

func accessKeyKey(entryID, userID string) []byte {
	return []byte(entryID + "/" + userID)
}

func decodeInto[T any](data []byte, out **T) error {
	if data == nil {
		return ErrNotFound
	}
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*out = &rec
	return nil
}
