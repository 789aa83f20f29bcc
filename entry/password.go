package entry

import (
	"crypto/sha256"
	"strings"

	"github.com/quillnotes/quill/internal/util"
)

// EncryptWithPassword wraps plaintext content in a local password envelope:
// the marker followed by base64(nonce || ciphertext) under a key hashed from
// the normalized password.
func EncryptWithPassword(content, password string) (string, error) {
	key := sha256.Sum256([]byte(util.Normalize(password)))
	defer util.WipeArray32(&key)

	blob, err := util.EncryptAES([]byte(content), key[:])
	if err != nil {
		return "", err
	}
	return envelopeMarker + util.B64Encode(blob), nil
}

// DecryptWithPassword opens a password envelope. It returns nil for a wrong
// password, a tampered envelope, or content that is not an envelope at all.
func DecryptWithPassword(envelope, password string) *string {
	if !IsEncrypted(envelope) {
		return nil
	}
	blob, err := util.B64Decode(strings.TrimPrefix(envelope, envelopeMarker))
	if err != nil {
		return nil
	}

	key := sha256.Sum256([]byte(util.Normalize(password)))
	defer util.WipeArray32(&key)

	plain, err := util.DecryptAES(blob, key[:])
	if err != nil {
		return nil
	}
	s := string(plain)
	util.WipeBytes(plain)
	return &s
}
