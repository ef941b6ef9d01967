package pathgen

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Byte caps for sanitized path components
const (
	MaxArtistBytes = 50
	MaxAlbumBytes  = 90
	MaxTitleBytes  = 90
)

// Fallback components for missing metadata
const (
	UnknownArtist = "Unknown-Artist"
	UnknownAlbum  = "Unknown-Album"
	UnknownTitle  = "Unknown-Title"
)

// digestLen is the number of hex digits appended to truncated components
const digestLen = 6

var hyphenRun = regexp.MustCompile(`-+`)

// Sanitize makes s safe as a single path component. The result is NFKC
// normalized, contains only letters, numbers, '_' and '-', has no leading,
// trailing or repeated hyphens, and is at most maxBytes long (0 = no cap).
// Truncation never splits a rune and ends in "-" plus a short digest of the
// full component, so long names that share a prefix stay distinct.
func Sanitize(s string, maxBytes int) string {
	if s == "" {
		return ""
	}

	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "'", "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}

	s = hyphenRun.ReplaceAllString(b.String(), "-")
	s = strings.Trim(s, "-")

	if maxBytes > 0 && len(s) > maxBytes {
		s = truncate(s, maxBytes)
	}
	return s
}

func truncate(s string, maxBytes int) string {
	// No room for a digest
	if maxBytes <= digestLen+1 {
		return strings.TrimRight(cutRunes(s, maxBytes), "-")
	}

	sum := sha256.Sum256([]byte(s))
	digest := hex.EncodeToString(sum[:])[:digestLen]
	head := strings.TrimRight(cutRunes(s, maxBytes-digestLen-1), "-")
	if head == "" {
		return digest
	}
	return head + "-" + digest
}

// cutRunes drops trailing runes until s fits in maxBytes
func cutRunes(s string, maxBytes int) string {
	for len(s) > maxBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}

// SanitizeArtist sanitizes an artist name for use as a directory
func SanitizeArtist(s string) string {
	return Sanitize(s, MaxArtistBytes)
}

// SanitizeAlbum sanitizes an album name for use as a directory
func SanitizeAlbum(s string) string {
	return Sanitize(s, MaxAlbumBytes)
}

// SanitizeTitle sanitizes a track title, falling back to UnknownTitle
func SanitizeTitle(s string) string {
	if t := Sanitize(s, MaxTitleBytes); t != "" {
		return t
	}
	return UnknownTitle
}
