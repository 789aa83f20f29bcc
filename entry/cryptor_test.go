package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/keys"
)

func testContent() Content {
	return Content{
		Title:       "Trip notes",
		Content:     "Day one: arrived late, the harbour was still lit.",
		Frontmatter: "mood: tired",
		Tags:        []string{"travel", "2026"},
	}
}

func mustKeys(t *testing.T) keys.UserKeyPair {
	t.Helper()
	kp, err := keys.GenerateUserKeys()
	require.NoError(t, err)
	return kp
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	owner := mustKeys(t)
	c := testContent()

	p, err := EncryptEntry(c, owner)
	require.NoError(t, err)

	got := DecryptEntry(p, owner.Secret, owner.Public)
	require.NotNil(t, got)
	assert.Equal(t, c, *got)
}

func TestEncryptEntryNonceUniqueness(t *testing.T) {
	owner := mustKeys(t)
	c := testContent()

	a, err := EncryptEntry(c, owner)
	require.NoError(t, err)
	b, err := EncryptEntry(c, owner)
	require.NoError(t, err)

	assert.NotEqual(t, a.ContentNonceB64, b.ContentNonceB64)
	assert.NotEqual(t, a.KeyNonceB64, b.KeyNonceB64)
	assert.NotEqual(t, a.EncryptedContentB64, b.EncryptedContentB64)
}

func TestDecryptEntryWrongRecipient(t *testing.T) {
	owner := mustKeys(t)
	stranger := mustKeys(t)

	p, err := EncryptEntry(testContent(), owner)
	require.NoError(t, err)

	assert.Nil(t, DecryptEntry(p, stranger.Secret, owner.Public))
}

func TestDecryptEntryMalformedPayload(t *testing.T) {
	owner := mustKeys(t)

	p, err := EncryptEntry(testContent(), owner)
	require.NoError(t, err)

	bad := *p
	bad.ContentNonceB64 = "AAAA" // wrong decoded length
	assert.Nil(t, DecryptEntry(&bad, owner.Secret, owner.Public))

	bad = *p
	bad.EncryptedContentB64 = "!!!"
	assert.Nil(t, DecryptEntry(&bad, owner.Secret, owner.Public))

	assert.Nil(t, DecryptEntry(nil, owner.Secret, owner.Public))
}

func TestEncryptEntryValidation(t *testing.T) {
	owner := mustKeys(t)

	_, err := EncryptEntry(Content{}, owner)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = EncryptEntry(testContent(), keys.UserKeyPair{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRewrapPreservesContentKey(t *testing.T) {
	author := mustKeys(t)
	reader := mustKeys(t)
	c := testContent()

	p, err := EncryptEntry(c, author)
	require.NoError(t, err)

	rk := RewrapEntryKey(p.EncryptedEntryKeyB64, p.KeyNonceB64, author, reader.Public)
	require.NotNil(t, rk)

	// The recipient decrypts the original ciphertext using the re-wrapped
	// key: re-wrapping must never re-encrypt content.
	shared := &EncryptedPayload{
		EncryptedContentB64:  p.EncryptedContentB64,
		ContentNonceB64:      p.ContentNonceB64,
		EncryptedEntryKeyB64: rk.EncryptedEntryKeyB64,
		KeyNonceB64:          rk.KeyNonceB64,
	}
	got := DecryptEntry(shared, reader.Secret, author.Public)
	require.NotNil(t, got)
	assert.Equal(t, c, *got)
}

func TestRewrapWrongAuthor(t *testing.T) {
	author := mustKeys(t)
	impostor := mustKeys(t)
	reader := mustKeys(t)

	p, err := EncryptEntry(testContent(), author)
	require.NoError(t, err)

	assert.Nil(t, RewrapEntryKey(p.EncryptedEntryKeyB64, p.KeyNonceB64, impostor, reader.Public))
	assert.Nil(t, RewrapEntryKey("garbage", p.KeyNonceB64, author, reader.Public))
}

func TestEncryptEntryWithExistingKey(t *testing.T) {
	owner := mustKeys(t)
	reader := mustKeys(t)

	first, err := EncryptEntry(testContent(), owner)
	require.NoError(t, err)

	rk := RewrapEntryKey(first.EncryptedEntryKeyB64, first.KeyNonceB64, owner, reader.Public)
	require.NotNil(t, rk)

	edited := testContent()
	edited.Content = "Day two: rain all morning."
	second, err := EncryptEntryWithExistingKey(edited, first.EncryptedEntryKeyB64, first.KeyNonceB64, owner)
	require.NoError(t, err)

	// Wrapped key fields are carried through untouched.
	assert.Equal(t, first.EncryptedEntryKeyB64, second.EncryptedEntryKeyB64)
	assert.Equal(t, first.KeyNonceB64, second.KeyNonceB64)

	// The reader's existing re-wrapped copy still opens the new content.
	shared := &EncryptedPayload{
		EncryptedContentB64:  second.EncryptedContentB64,
		ContentNonceB64:      second.ContentNonceB64,
		EncryptedEntryKeyB64: rk.EncryptedEntryKeyB64,
		KeyNonceB64:          rk.KeyNonceB64,
	}
	got := DecryptEntry(shared, reader.Secret, owner.Public)
	require.NotNil(t, got)
	assert.Equal(t, edited, *got)
}

func TestFieldRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	f, err := EncryptField("a private thought", key)
	require.NoError(t, err)

	got := DecryptField(f, key)
	require.NotNil(t, got)
	assert.Equal(t, "a private thought", *got)

	other := make([]byte, 32)
	assert.Nil(t, DecryptField(f, other))
}

func TestSearchHashes(t *testing.T) {
	assert.Equal(t, TitleHash("Trip notes"), TitleHash("Trip notes"))
	assert.NotEqual(t, ContentHash("a"), ContentHash("b"))
	assert.Len(t, PreviewHash("short"), 64)
}

func TestPasswordEnvelope(t *testing.T) {
	env, err := EncryptWithPassword("secret page", "pw")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(env))
	assert.False(t, IsEncrypted("plain text"))

	got := DecryptWithPassword(env, "pw")
	require.NotNil(t, got)
	assert.Equal(t, "secret page", *got)

	assert.Nil(t, DecryptWithPassword(env, "wrong"))
	assert.Nil(t, DecryptWithPassword("plain text", "pw"))
}
