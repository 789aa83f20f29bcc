package icrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/util"
)

func TestSealOpenBetween(t *testing.T) {
	author, err := util.GenerateX25519Keypair()
	require.NoError(t, err)
	reader, err := util.GenerateX25519Keypair()
	require.NoError(t, err)

	plaintext := []byte("per-entry content key")
	ct, nonce, err := SealBetween(author.Secret, reader.Public, plaintext)
	require.NoError(t, err)
	require.Len(t, nonce, BoxNonceSize)

	opened, err := OpenBetween(reader.Secret, author.Public, ct, nonce)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealBetweenSelf(t *testing.T) {
	// Owner-wrap: the author seals to their own public key.
	kp, err := util.GenerateX25519Keypair()
	require.NoError(t, err)

	ct, nonce, err := SealBetween(kp.Secret, kp.Public, []byte("owner key"))
	require.NoError(t, err)

	opened, err := OpenBetween(kp.Secret, kp.Public, ct, nonce)
	require.NoError(t, err)
	assert.Equal(t, []byte("owner key"), opened)
}

func TestOpenBetweenWrongRecipient(t *testing.T) {
	author, err := util.GenerateX25519Keypair()
	require.NoError(t, err)
	reader, err := util.GenerateX25519Keypair()
	require.NoError(t, err)
	eve, err := util.GenerateX25519Keypair()
	require.NoError(t, err)

	ct, nonce, err := SealBetween(author.Secret, reader.Public, []byte("key"))
	require.NoError(t, err)

	_, err = OpenBetween(eve.Secret, author.Public, ct, nonce)
	assert.Error(t, err)
}

func TestSealBetweenFreshNonce(t *testing.T) {
	kp, err := util.GenerateX25519Keypair()
	require.NoError(t, err)

	_, n1, err := SealBetween(kp.Secret, kp.Public, []byte("key"))
	require.NoError(t, err)
	_, n2, err := SealBetween(kp.Secret, kp.Public, []byte("key"))
	require.NoError(t, err)

	assert.NotEqual(t, n1, n2)
}

func TestOpenBetweenBadNonceSize(t *testing.T) {
	kp, err := util.GenerateX25519Keypair()
	require.NoError(t, err)

	_, err = OpenBetween(kp.Secret, kp.Public, []byte("ct"), []byte("short"))
	assert.Error(t, err)
}

func TestSearchHash(t *testing.T) {
	a := SearchHash("Trip notes")
	b := SearchHash("Trip notes")
	c := SearchHash("Trip notes!")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestPreviewHashTruncates(t *testing.T) {
	long := make([]rune, 1000)
	for i := range long {
		long[i] = 'a'
	}
	head := string(long[:256])

	assert.Equal(t, PreviewHash(string(long)), SearchHash(head))
}
