package relay

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes s (NFKD) and drops every rune outside 7-bit ASCII,
// so "Café" becomes "Cafe" and non-Latin text disappears.
func Normalize(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	return b.String()
}
