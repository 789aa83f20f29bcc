package cloudsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillnotes/quill/entry"
	"github.com/quillnotes/quill/internal/util"
)

// metadataAlgorithm names the hybrid scheme in the wire metadata so a future
// scheme change can coexist with old rows.
const metadataAlgorithm = "aes-256-gcm+x25519"

// Account is the remote identity of the authenticated user.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email,omitempty"`
	PublicKeyB64 string `json:"public_key"`
}

// AccessKey is the server-visible join between an entry and one user's
// wrapped copy of the entry's symmetric key. One row per (entry, user).
type AccessKey struct {
	EntryID           string    `json:"entry_id,omitempty"`
	UserID            string    `json:"user_id"`
	EncryptedEntryKey string    `json:"encrypted_entry_key"`
	KeyNonce          string    `json:"key_nonce"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
}

// CloudEntry is the remote representation of one published entry, as
// returned by the entries endpoints. AccessKey carries the requesting
// identity's wrapped entry key.
type CloudEntry struct {
	ID                   string     `json:"id"`
	AuthorID             string     `json:"author_id"`
	AuthorPublicKeyB64   string     `json:"author_public_key"`
	EncryptedTitle       string     `json:"encrypted_title"`
	EncryptedContent     string     `json:"encrypted_content"`
	EncryptedFrontmatter string     `json:"encrypted_frontmatter,omitempty"`
	EncryptionMetadata   string     `json:"encryption_metadata"`
	TitleHash            string     `json:"title_hash"`
	ContentPreviewHash   string     `json:"content_preview_hash,omitempty"`
	IsPublished          bool       `json:"is_published"`
	FilePath             string     `json:"file_path,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	AccessKey            *AccessKey `json:"access_key,omitempty"`
}

// EntryUpsert is the request body for creating or updating a cloud entry.
// IfUnmodifiedSince is honored on update only; the server rejects the write
// with a 409 when its copy is newer.
type EntryUpsert struct {
	EncryptedTitle       string     `json:"encrypted_title"`
	EncryptedContent     string     `json:"encrypted_content"`
	EncryptedFrontmatter string     `json:"encrypted_frontmatter,omitempty"`
	EncryptionMetadata   string     `json:"encryption_metadata"`
	TitleHash            string     `json:"title_hash"`
	ContentPreviewHash   string     `json:"content_preview_hash,omitempty"`
	IsPublished          bool       `json:"is_published"`
	FilePath             string     `json:"file_path,omitempty"`
	OwnerEncryptedKey    string     `json:"owner_encrypted_entry_key"`
	OwnerKeyNonce        string     `json:"owner_key_nonce"`
	TagIDs               []string   `json:"tag_ids,omitempty"`
	ClientModifiedAt     time.Time  `json:"client_modified_at"`
	IfUnmodifiedSince    *time.Time `json:"if_unmodified_since,omitempty"`
}

// EncryptionMetadata is the JSON blob carried alongside the ciphertext
// fields. It holds every nonce the payload needs; a remote row whose
// metadata does not parse is undecryptable and gets skipped on import.
type EncryptionMetadata struct {
	Version          int    `json:"version"`
	Algorithm        string `json:"algorithm"`
	ContentNonce     string `json:"content_nonce"`
	TitleNonce       string `json:"title_nonce,omitempty"`
	FrontmatterNonce string `json:"frontmatter_nonce,omitempty"`
}

// encodeMetadata serializes the nonce set of a freshly encrypted payload.
func encodeMetadata(p *entry.EncryptedPayload) (string, error) {
	md := EncryptionMetadata{
		Version:          1,
		Algorithm:        metadataAlgorithm,
		ContentNonce:     p.ContentNonceB64,
		TitleNonce:       p.TitleNonceB64,
		FrontmatterNonce: p.FrontmatterNonceB64,
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encoding encryption metadata: %w", err)
	}
	return string(raw), nil
}

// decodePayload rebuilds a decryptable payload from a remote entry and the
// requester's access key. Returns an error for any shape problem: missing
// access key, unparsable metadata, or a metadata version this client does
// not understand.
func decodePayload(e *CloudEntry) (*entry.EncryptedPayload, error) {
	if e.AccessKey == nil {
		return nil, fmt.Errorf("entry %s: no access key for requester", e.ID)
	}

	var md EncryptionMetadata
	if err := json.Unmarshal([]byte(e.EncryptionMetadata), &md); err != nil {
		return nil, fmt.Errorf("entry %s: unparsable encryption metadata: %w", e.ID, err)
	}
	if md.Version != 1 || md.ContentNonce == "" {
		return nil, fmt.Errorf("entry %s: unsupported encryption metadata", e.ID)
	}

	return &entry.EncryptedPayload{
		EncryptedContentB64:  e.EncryptedContent,
		ContentNonceB64:      md.ContentNonce,
		EncryptedEntryKeyB64: e.AccessKey.EncryptedEntryKey,
		KeyNonceB64:          e.AccessKey.KeyNonce,
	}, nil
}

// Grantee is one user an entry is shared with: their server identity plus
// the public key their copy of the entry key gets wrapped to.
type Grantee struct {
	UserID    string
	PublicKey [32]byte
}

// encodePublicKey renders a raw key for the wire.
func encodePublicKey(pub [32]byte) string {
	return util.B64Encode(pub[:])
}
