// Package slug builds URL-friendly identifiers from product and shop names.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugRegexp = regexp.MustCompile(`[^a-z0-9]+`)

// ligatures have no decomposition, so they are spelled out first.
var ligatures = strings.NewReplacer("œ", "oe", "Œ", "oe", "æ", "ae", "Æ", "ae", "ß", "ss")

// Generate creates a URL-friendly slug from the given name. Accents are
// stripped, so French and other Latin-script names map to plain ASCII.
//
// Examples:
//   - "Pagne Wax Élégant" → "pagne-wax-elegant"
//   - "Bœuf à la carte" → "boeuf-a-la-carte"
//   - "Hello   World!" → "hello-world"
func Generate(name string) string {
	s := ligatures.Replace(strings.TrimSpace(name))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	// Anything that is not a-z or 0-9 becomes a single hyphen.
	s = slugRegexp.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// WithID appends id so that products sharing a name keep distinct URLs.
func WithID(name, id string) string {
	base := Generate(name)
	switch {
	case id == "":
		return base
	case base == "":
		return id
	default:
		return base + "-" + id
	}
}
