package util

import "strings"

const maxSlugLen = 48

// Slugify turns a title into a filesystem-safe identifier: lowercase ASCII
// letters and digits with dash separators, capped in length. Returns "" for
// titles with no usable characters.
func Slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
