// Package icrypto implements the asymmetric key-wrapping construction used
// to protect per-entry content keys: static-static X25519 ECDH, HKDF-SHA256
// key derivation, and AES-256-GCM.
package icrypto

import (
	"fmt"

	"github.com/quillnotes/quill/internal/util"
)

// BoxNonceSize is the asymmetric-cipher nonce size. The 24-byte nonce is
// used both as the HKDF salt and (truncated) as the GCM nonce, so each wrap
// encrypts under a unique derived key.
const BoxNonceSize = 24

var wrapInfo = []byte("quill:entry-key-wrap:v1")

// SealBetween encrypts plaintext from the sender's secret key to the
// recipient's public key with a freshly generated nonce. It returns the
// ciphertext and the nonce required to open it.
func SealBetween(senderSecret [32]byte, recipientPub [32]byte, plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce, err = util.RandomBytes(BoxNonceSize)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err = seal(senderSecret, recipientPub, plaintext, nonce)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, nonce, nil
}

// OpenBetween decrypts a blob sealed by SealBetween. The DH exchange is
// symmetric, so (recipientSecret, senderPub) opens what
// (senderSecret, recipientPub) sealed.
func OpenBetween(recipientSecret [32]byte, senderPub [32]byte, ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != BoxNonceSize {
		return nil, fmt.Errorf("invalid box nonce size: got %d, want %d", len(nonce), BoxNonceSize)
	}

	shared, err := util.SharedSecret(recipientSecret, senderPub)
	if err != nil {
		return nil, err
	}
	defer util.WipeArray32(&shared)

	wrapKey, err := util.HKDF(shared[:], nonce, wrapInfo)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrapKey)

	return util.DecryptAESWithNonce(ciphertext, wrapKey, nonce[:util.GCMNonceSize])
}

func seal(senderSecret [32]byte, recipientPub [32]byte, plaintext, nonce []byte) ([]byte, error) {
	shared, err := util.SharedSecret(senderSecret, recipientPub)
	if err != nil {
		return nil, err
	}
	defer util.WipeArray32(&shared)

	wrapKey, err := util.HKDF(shared[:], nonce, wrapInfo)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrapKey)

	return util.EncryptAESWithNonce(plaintext, wrapKey, nonce[:util.GCMNonceSize])
}
