// Package entry implements hybrid encryption for journal entries: a fresh
// random symmetric key per entry for the bulk content, wrapped asymmetrically
// for exactly one recipient. Sharing re-wraps the small key instead of
// re-encrypting the content.
package entry

import (
	"errors"
	"strings"
)

// ErrValidation reports a programmer-error-class input: a malformed entry
// record or key material of the wrong shape. Cryptographic failures are
// never reported this way; they surface as nil results.
var ErrValidation = errors.New("invalid entry input")

// Content is the canonical plaintext form of a journal entry. Its JSON
// encoding is the byte form that gets encrypted.
type Content struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Frontmatter string   `json:"frontmatter,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// EncryptedPayload is one entry's ciphertext plus its symmetric key wrapped
// for a single recipient. One payload exists per (entry, recipient) pair.
// The title and frontmatter are additionally encrypted as standalone fields
// under the same entry key so the cloud copy can expose them selectively;
// DecryptEntry ignores them and treats the content ciphertext as
// authoritative.
type EncryptedPayload struct {
	EncryptedContentB64  string `json:"encrypted_content"`
	ContentNonceB64      string `json:"content_nonce"`
	EncryptedEntryKeyB64 string `json:"encrypted_entry_key"`
	KeyNonceB64          string `json:"key_nonce"`

	EncryptedTitleB64       string `json:"encrypted_title,omitempty"`
	TitleNonceB64           string `json:"title_nonce,omitempty"`
	EncryptedFrontmatterB64 string `json:"encrypted_frontmatter,omitempty"`
	FrontmatterNonceB64     string `json:"frontmatter_nonce,omitempty"`
}

// RewrappedKey is an entry's symmetric key re-wrapped for a new recipient.
type RewrappedKey struct {
	EncryptedEntryKeyB64 string `json:"encrypted_entry_key"`
	KeyNonceB64          string `json:"key_nonce"`
}

// EncryptedField is a single string field encrypted on its own, so fields
// can be revealed selectively.
type EncryptedField struct {
	CiphertextB64 string `json:"ciphertext"`
	NonceB64      string `json:"nonce"`
}

// envelopeMarker prefixes locally password-protected entry content so that
// plaintext and encrypted entries can coexist in the same store.
const envelopeMarker = "$QUILL;1$"

// IsEncrypted reports whether locally stored content is a password envelope
// rather than plaintext.
func IsEncrypted(content string) bool {
	return strings.HasPrefix(content, envelopeMarker)
}
