// Package sanitize normalizes identifiers and untrusted file names.
//
// Collection names in the vector stores (Qdrant, chromem) must match
// ^[a-z0-9_]{1,64}$. Uploaded file names are reduced to a safe base name
// before they touch the filesystem.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	// MaxIdentifierLength is the maximum length of a collection name.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of "_<8-char-hash>".
	HashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "design"

	// MaxFilenameLength bounds sanitized file names in bytes.
	MaxFilenameLength = 128
)

// Identifier sanitizes s for use as a collection name.
//
//	"Design-Index v2" -> "design_index_v2"
//	"" or "!!!"       -> "design"
//
// Names longer than MaxIdentifierLength are truncated with a hash suffix so
// distinct inputs stay distinct.
func Identifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	out = strings.Trim(out, "_")

	if out == "" {
		return DefaultIdentifier
	}
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out, MaxIdentifierLength)
	}
	return out
}

// Filename reduces an untrusted upload name to a base name that is safe to
// join onto a directory. Letters and digits in any script are kept, as are
// '.', '-' and '_'; everything else becomes '_'. It returns "" when nothing
// usable remains.
//
//	"../../의자 사진.jpg" -> "의자_사진.jpg"
//	"C:\\tmp\\a.png"      -> "a.png"
func Filename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return ""
	}
	if len(out) > MaxFilenameLength {
		ext := filepath.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = truncateWithHash(strings.TrimSuffix(out, ext), MaxFilenameLength-len(ext)) + ext
	}
	return out
}

// truncateWithHash cuts s to max bytes, ending in "_<8-char-hash>" of the
// original. The cut never splits a multi-byte rune.
func truncateWithHash(s string, max int) string {
	hash := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(hash[:])[:8]

	cut := max - HashSuffixLength
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], "_") + suffix
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
