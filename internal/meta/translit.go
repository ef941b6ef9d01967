package meta

import (
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// IsLatin reports whether s can be used in a path without romanization:
// every letter is ASCII or from the Latin script.
func IsLatin(s string) bool {
	for _, r := range s {
		if r < unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

// HasCJK reports whether s contains Han, Hiragana or Katakana characters,
// the scripts worth a network romanization lookup
func HasCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

// Transliterate returns an ASCII approximation of s
func Transliterate(s string) string {
	return collapseWhitespace(unidecode.Unidecode(s))
}
