package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUserKeysUnique(t *testing.T) {
	a, err := GenerateUserKeys()
	require.NoError(t, err)
	b, err := GenerateUserKeys()
	require.NoError(t, err)

	assert.NotEqual(t, a.Secret, b.Secret)
	assert.NotEqual(t, a.Public, b.Public)
}

func TestSecretKeyRoundTrip(t *testing.T) {
	pair, err := GenerateUserKeys()
	require.NoError(t, err)

	blob, err := EncryptSecretKey(pair.Secret, "correct horse")
	require.NoError(t, err)

	got := DecryptSecretKey(blob, "correct horse")
	require.NotNil(t, got)
	assert.Equal(t, pair.Secret, *got)
}

func TestDecryptSecretKeyWrongPassword(t *testing.T) {
	pair, err := GenerateUserKeys()
	require.NoError(t, err)

	blob, err := EncryptSecretKey(pair.Secret, "pw1")
	require.NoError(t, err)

	assert.Nil(t, DecryptSecretKey(blob, "pw2"))
}

func TestDecryptSecretKeyMalformed(t *testing.T) {
	assert.Nil(t, DecryptSecretKey("not base64!!!", "pw"))
	assert.Nil(t, DecryptSecretKey("", "pw"))
	// Valid base64, but far too short to contain a nonce.
	assert.Nil(t, DecryptSecretKey("AAAA", "pw"))
}

func TestEncryptSecretKeyNonDeterministic(t *testing.T) {
	pair, err := GenerateUserKeys()
	require.NoError(t, err)

	a, err := EncryptSecretKey(pair.Secret, "pw")
	require.NoError(t, err)
	b, err := EncryptSecretKey(pair.Secret, "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	// Both still decrypt to the same secret.
	assert.Equal(t, *DecryptSecretKey(a, "pw"), *DecryptSecretKey(b, "pw"))
}

func TestValidateKeyPair(t *testing.T) {
	pair, err := GenerateUserKeys()
	require.NoError(t, err)
	assert.True(t, ValidateKeyPair(pair))

	other, err := GenerateUserKeys()
	require.NoError(t, err)

	mismatched := UserKeyPair{Secret: pair.Secret, Public: other.Public}
	assert.False(t, ValidateKeyPair(mismatched))
}

func TestClearKeyPair(t *testing.T) {
	pair, err := GenerateUserKeys()
	require.NoError(t, err)

	ClearKeyPair(&pair)
	assert.Equal(t, [32]byte{}, pair.Secret)
	assert.Equal(t, [32]byte{}, pair.Public)
}
