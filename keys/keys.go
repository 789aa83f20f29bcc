// Package keys manages the user's asymmetric key pair: generation,
// encryption-at-rest under a password-derived key, and validation.
//
// Cryptographic failures are deliberately uniform: decryption returns nil on
// a wrong password, malformed input, or tampered ciphertext alike, so a
// caller (or an attacker watching one) cannot tell the cases apart.
package keys

import (
	"crypto/sha256"

	"golang.org/x/crypto/curve25519"

	icrypto "github.com/quillnotes/quill/internal/crypto"
	"github.com/quillnotes/quill/internal/util"
)

// KeySize is the length of both halves of a user key pair.
const KeySize = util.KeySize

// UserKeyPair is a user's long-term X25519 key pair. The secret key never
// leaves the client in plaintext.
type UserKeyPair = util.KeyPair

// GenerateUserKeys produces a fresh key pair for a new user.
func GenerateUserKeys() (UserKeyPair, error) {
	return util.GenerateX25519Keypair()
}

// PublicKeyOf derives the public half from a secret key, used when
// rebuilding a pair from the decrypted secret-key blob.
func PublicKeyOf(secret [32]byte) [32]byte {
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &secret)
	return pub
}

// EncryptSecretKey encrypts the secret key under a key derived from the
// password and returns base64(nonce || ciphertext). The derivation is a
// salt-free one-way hash of the normalized password, so the same password
// always derives the same key, but the fresh GCM nonce makes every blob
// distinct.
func EncryptSecretKey(secretKey [32]byte, password string) (string, error) {
	passKey := derivePasswordKey(password)
	defer util.WipeArray32(&passKey)

	blob, err := util.EncryptAES(secretKey[:], passKey[:])
	if err != nil {
		return "", err
	}
	return util.B64Encode(blob), nil
}

// DecryptSecretKey is the inverse of EncryptSecretKey. It returns nil on any
// failure: wrong password, malformed base64, truncated blob, or a failed
// authentication tag.
func DecryptSecretKey(blob string, password string) *[32]byte {
	raw, err := util.B64Decode(blob)
	if err != nil {
		return nil
	}

	passKey := derivePasswordKey(password)
	defer util.WipeArray32(&passKey)

	plain, err := util.DecryptAES(raw, passKey[:])
	if err != nil {
		return nil
	}
	if len(plain) != KeySize {
		util.WipeBytes(plain)
		return nil
	}

	var secret [32]byte
	copy(secret[:], plain)
	util.WipeBytes(plain)
	return &secret
}

// ValidateKeyPair round-trips a known plaintext through the pair to confirm
// the public and secret halves belong together. The probe is sealed to the
// pair's public key from an ephemeral peer and opened with the pair's secret
// key; that only succeeds when the two halves share the same scalar.
func ValidateKeyPair(pair UserKeyPair) bool {
	eph, err := util.GenerateX25519Keypair()
	if err != nil {
		return false
	}
	defer util.WipeArray32(&eph.Secret)

	probe := []byte("quill:keypair-probe")
	ct, nonce, err := icrypto.SealBetween(eph.Secret, pair.Public, probe)
	if err != nil {
		return false
	}
	opened, err := icrypto.OpenBetween(pair.Secret, eph.Public, ct, nonce)
	if err != nil {
		return false
	}
	ok := string(opened) == string(probe)
	util.WipeBytes(opened)
	return ok
}

// ClearKey zeroes a single key in place.
func ClearKey(key *[32]byte) {
	util.WipeArray32(key)
}

// ClearKeyPair zeroes both halves of a key pair in place.
func ClearKeyPair(pair *UserKeyPair) {
	util.WipeArray32(&pair.Secret)
	util.WipeArray32(&pair.Public)
}

func derivePasswordKey(password string) [32]byte {
	return sha256.Sum256([]byte(util.Normalize(password)))
}
