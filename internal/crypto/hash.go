package icrypto

import (
	"crypto/sha256"

	"github.com/quillnotes/quill/internal/util"
)

// previewRunes is how much of the content participates in the preview hash.
const previewRunes = 256

// SearchHash returns the hex SHA-256 of the NFKD-normalized plaintext.
// Computed client-side before encryption so the server can deduplicate and
// index without ever seeing plaintext.
func SearchHash(plaintext string) string {
	sum := sha256.Sum256([]byte(util.Normalize(plaintext)))
	return util.HexEncode(sum[:])
}

// PreviewHash hashes only the leading portion of the content, matching what
// a list view would render.
func PreviewHash(content string) string {
	runes := []rune(content)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return SearchHash(string(runes))
}
