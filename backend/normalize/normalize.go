// Package normalize builds comparison keys for place names, so that
// "Thiès", "THIES" and " thies " all match the same locality.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key lowercases the name, strips diacritical marks and trims it.
func Key(name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	// Transformers keep state, so each call gets its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, lower)
	if err != nil {
		return strings.TrimSpace(lower)
	}
	return strings.TrimSpace(stripped)
}

// Equal reports whether two names normalize to the same key.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
