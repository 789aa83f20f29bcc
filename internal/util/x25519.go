package util

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the length of X25519 public and secret keys.
const KeySize = 32

// KeyPair holds an X25519 public/secret key pair.
type KeyPair struct {
	Secret [32]byte
	Public [32]byte
}

// GenerateX25519Keypair generates a fresh X25519 key pair.
func GenerateX25519Keypair() (KeyPair, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return KeyPair{}, fmt.Errorf("generating X25519 secret key: %w", err)
	}

	// Clamp per RFC 7748.
	secret[0] &= 248
	secret[31] &= 127
	secret[31] |= 64

	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &secret)

	return KeyPair{Secret: secret, Public: pub}, nil
}

// SharedSecret computes the X25519 Diffie-Hellman shared secret between a
// secret key and a peer's public key.
func SharedSecret(secret [32]byte, pub [32]byte) ([32]byte, error) {
	shared, err := curve25519.X25519(secret[:], pub[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("deriving shared secret: %w", err)
	}
	var res [32]byte
	copy(res[:], shared)
	return res, nil
}
