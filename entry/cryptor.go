package entry

import (
	"encoding/json"
	"fmt"

	icrypto "github.com/quillnotes/quill/internal/crypto"
	"github.com/quillnotes/quill/internal/util"
	"github.com/quillnotes/quill/keys"
)

// EncryptEntry generates a fresh per-entry key, encrypts the canonical form
// of c under it, and wraps the key to the owner's own public key (owner-wrap)
// so only the owner can unwrap it. The per-entry key is zeroed before return.
func EncryptEntry(c Content, owner keys.UserKeyPair) (*EncryptedPayload, error) {
	if err := validateContent(c); err != nil {
		return nil, err
	}
	if err := validatePair(owner); err != nil {
		return nil, err
	}

	entryKey, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(entryKey)

	contentB64, nonceB64, err := encryptContent(c, entryKey)
	if err != nil {
		return nil, err
	}

	wrapped, keyNonce, err := icrypto.SealBetween(owner.Secret, owner.Public, entryKey)
	if err != nil {
		return nil, err
	}

	p := &EncryptedPayload{
		EncryptedContentB64:  contentB64,
		ContentNonceB64:      nonceB64,
		EncryptedEntryKeyB64: util.B64Encode(wrapped),
		KeyNonceB64:          util.B64Encode(keyNonce),
	}
	if err := encryptStandaloneFields(p, c, entryKey); err != nil {
		return nil, err
	}
	return p, nil
}

// EncryptEntryWithExistingKey re-encrypts content while preserving the
// already-wrapped entry key, so wrapped copies held by other recipients stay
// valid. The owner unwraps the key, encrypts the new content under it, and
// carries the original wrapped-key fields through unchanged.
func EncryptEntryWithExistingKey(c Content, encryptedEntryKeyB64, keyNonceB64 string, owner keys.UserKeyPair) (*EncryptedPayload, error) {
	if err := validateContent(c); err != nil {
		return nil, err
	}
	if err := validatePair(owner); err != nil {
		return nil, err
	}

	entryKey := unwrapKey(encryptedEntryKeyB64, keyNonceB64, owner.Secret, owner.Public)
	if entryKey == nil {
		return nil, fmt.Errorf("%w: cannot unwrap existing entry key", ErrValidation)
	}
	defer util.WipeBytes(entryKey)

	contentB64, nonceB64, err := encryptContent(c, entryKey)
	if err != nil {
		return nil, err
	}

	p := &EncryptedPayload{
		EncryptedContentB64:  contentB64,
		ContentNonceB64:      nonceB64,
		EncryptedEntryKeyB64: encryptedEntryKeyB64,
		KeyNonceB64:          keyNonceB64,
	}
	if err := encryptStandaloneFields(p, c, entryKey); err != nil {
		return nil, err
	}
	return p, nil
}

// DecryptEntry unwraps the per-entry key with (recipientSecret,
// authorPublic) and decrypts the content. It returns nil on any shape or
// cryptographic failure; the cases are deliberately indistinguishable.
func DecryptEntry(p *EncryptedPayload, recipientSecret [32]byte, authorPublic [32]byte) *Content {
	if p == nil || !payloadShapeOK(p) {
		return nil
	}

	entryKey := unwrapKey(p.EncryptedEntryKeyB64, p.KeyNonceB64, recipientSecret, authorPublic)
	if entryKey == nil {
		return nil
	}
	defer util.WipeBytes(entryKey)

	ciphertext, err := util.B64Decode(p.EncryptedContentB64)
	if err != nil {
		return nil
	}
	nonce, err := util.B64Decode(p.ContentNonceB64)
	if err != nil {
		return nil
	}

	plaintext, err := util.DecryptAESWithNonce(ciphertext, entryKey, nonce)
	if err != nil {
		return nil
	}
	defer util.WipeBytes(plaintext)

	var c Content
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return nil
	}
	return &c
}

// RewrapEntryKey is the sharing primitive: the author unwraps the per-entry
// key with their own pair and re-wraps the same key to the recipient's
// public key with a fresh nonce. The bulk ciphertext is never touched.
// Returns nil if the author cannot unwrap the original key or the inputs
// are malformed.
func RewrapEntryKey(encryptedEntryKeyB64, keyNonceB64 string, author keys.UserKeyPair, recipientPublic [32]byte) *RewrappedKey {
	entryKey := unwrapKey(encryptedEntryKeyB64, keyNonceB64, author.Secret, author.Public)
	if entryKey == nil {
		return nil
	}
	defer util.WipeBytes(entryKey)

	wrapped, nonce, err := icrypto.SealBetween(author.Secret, recipientPublic, entryKey)
	if err != nil {
		return nil
	}

	return &RewrappedKey{
		EncryptedEntryKeyB64: util.B64Encode(wrapped),
		KeyNonceB64:          util.B64Encode(nonce),
	}
}

// EncryptField encrypts a single string field under key with its own nonce.
func EncryptField(value string, key []byte) (*EncryptedField, error) {
	blob, err := util.EncryptAES([]byte(value), key)
	if err != nil {
		return nil, err
	}
	return &EncryptedField{
		CiphertextB64: util.B64Encode(blob[util.GCMNonceSize:]),
		NonceB64:      util.B64Encode(blob[:util.GCMNonceSize]),
	}, nil
}

// DecryptField is the inverse of EncryptField; nil on any failure.
func DecryptField(f *EncryptedField, key []byte) *string {
	if f == nil {
		return nil
	}
	ciphertext, err := util.B64Decode(f.CiphertextB64)
	if err != nil {
		return nil
	}
	nonce, err := util.B64Decode(f.NonceB64)
	if err != nil {
		return nil
	}
	plain, err := util.DecryptAESWithNonce(ciphertext, key, nonce)
	if err != nil {
		return nil
	}
	s := string(plain)
	util.WipeBytes(plain)
	return &s
}

// ContentHash returns the search hash of the full content plaintext.
func ContentHash(content string) string {
	return icrypto.SearchHash(content)
}

// TitleHash returns the search hash of the title plaintext.
func TitleHash(title string) string {
	return icrypto.SearchHash(title)
}

// PreviewHash returns the search hash of the content's preview prefix.
func PreviewHash(content string) string {
	return icrypto.PreviewHash(content)
}

func encryptContent(c Content, entryKey []byte) (contentB64, nonceB64 string, err error) {
	plaintext, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	defer util.WipeBytes(plaintext)

	blob, err := util.EncryptAES(plaintext, entryKey)
	if err != nil {
		return "", "", err
	}
	return util.B64Encode(blob[util.GCMNonceSize:]), util.B64Encode(blob[:util.GCMNonceSize]), nil
}

func encryptStandaloneFields(p *EncryptedPayload, c Content, entryKey []byte) error {
	title, err := EncryptField(c.Title, entryKey)
	if err != nil {
		return err
	}
	p.EncryptedTitleB64 = title.CiphertextB64
	p.TitleNonceB64 = title.NonceB64

	if c.Frontmatter != "" {
		fm, err := EncryptField(c.Frontmatter, entryKey)
		if err != nil {
			return err
		}
		p.EncryptedFrontmatterB64 = fm.CiphertextB64
		p.FrontmatterNonceB64 = fm.NonceB64
	}
	return nil
}

func unwrapKey(encryptedEntryKeyB64, keyNonceB64 string, recipientSecret, authorPublic [32]byte) []byte {
	wrapped, err := util.B64Decode(encryptedEntryKeyB64)
	if err != nil {
		return nil
	}
	nonce, err := util.B64Decode(keyNonceB64)
	if err != nil {
		return nil
	}
	if len(nonce) != icrypto.BoxNonceSize {
		return nil
	}

	entryKey, err := icrypto.OpenBetween(recipientSecret, authorPublic, wrapped, nonce)
	if err != nil {
		return nil
	}
	if len(entryKey) != util.AESKeySize {
		util.WipeBytes(entryKey)
		return nil
	}
	return entryKey
}

func payloadShapeOK(p *EncryptedPayload) bool {
	nonce, err := util.B64Decode(p.ContentNonceB64)
	if err != nil || len(nonce) != util.GCMNonceSize {
		return false
	}
	keyNonce, err := util.B64Decode(p.KeyNonceB64)
	if err != nil || len(keyNonce) != icrypto.BoxNonceSize {
		return false
	}
	content, err := util.B64Decode(p.EncryptedContentB64)
	if err != nil || len(content) < util.GCMOverhead {
		return false
	}
	if p.EncryptedEntryKeyB64 == "" {
		return false
	}
	return true
}

func validateContent(c Content) error {
	if c.Title == "" && c.Content == "" {
		return fmt.Errorf("%w: entry has neither title nor content", ErrValidation)
	}
	return nil
}

func validatePair(pair keys.UserKeyPair) error {
	var zero [32]byte
	if pair.Secret == zero || pair.Public == zero {
		return fmt.Errorf("%w: key pair is missing key material", ErrValidation)
	}
	return nil
}
