package api

import "time"

// RegisterRequest creates an account. The public key is the client's
// long-term X25519 public key, base64-encoded; the server never sees the
// secret half or any plaintext content.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	PublicKey string `json:"public_key"`
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token for subsequent requests.
type AuthResponse struct {
	Token   string          `json:"token"`
	Account AccountResponse `json:"account"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	PublicKey string `json:"public_key"`
}

// EntryRequest is the body for creating or updating an entry. Every content
// field arrives encrypted; the hashes are computed client-side over
// plaintext so the server can support duplicate detection without seeing
// any of it. IfUnmodifiedSince guards updates: the write is rejected with
// 409 when the server copy is newer.
type EntryRequest struct {
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

// EntryResponse is one entry as returned to a caller, including that
// caller's access key when they have one.
type EntryResponse struct {
	ID                   string             `json:"id"`
	AuthorID             string             `json:"author_id"`
	AuthorPublicKey      string             `json:"author_public_key"`
	EncryptedTitle       string             `json:"encrypted_title"`
	EncryptedContent     string             `json:"encrypted_content"`
	EncryptedFrontmatter string             `json:"encrypted_frontmatter,omitempty"`
	EncryptionMetadata   string             `json:"encryption_metadata"`
	TitleHash            string             `json:"title_hash"`
	ContentPreviewHash   string             `json:"content_preview_hash,omitempty"`
	IsPublished          bool               `json:"is_published"`
	FilePath             string             `json:"file_path,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	AccessKey            *AccessKeyResponse `json:"access_key,omitempty"`
}

// AccessKeyRequest is one wrapped entry key to grant.
type AccessKeyRequest struct {
	UserID            string `json:"user_id"`
	EncryptedEntryKey string `json:"encrypted_entry_key"`
	KeyNonce          string `json:"key_nonce"`
}

// CreateAccessKeysRequest grants access to several users in one call.
type CreateAccessKeysRequest struct {
	Keys []AccessKeyRequest `json:"keys"`
}

// AccessKeyResponse is one stored access key.
type AccessKeyResponse struct {
	EntryID           string    `json:"entry_id"`
	UserID            string    `json:"user_id"`
	EncryptedEntryKey string    `json:"encrypted_entry_key"`
	KeyNonce          string    `json:"key_nonce"`
	CreatedAt         time.Time `json:"created_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
