// Package i18n serves the UI translation bundles. The set of locales is fixed
// at startup; a locale code never becomes part of a file path at request time.
package i18n

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/en.json
var enJSON []byte

//go:embed locales/fr.json
var frJSON []byte

// DefaultLocale is served when negotiation finds nothing better.
const DefaultLocale = "fr"

// Bundle maps translation keys to messages.
type Bundle map[string]string

// Catalog is the enumerated set of locale bundles.
type Catalog struct {
	bundles map[string]Bundle
	tags    []language.Tag
	codes   []string
	matcher language.Matcher
}

// Load builds the catalog from the embedded bundles.
func Load() (*Catalog, error) {
	return New(map[string][]byte{
		"fr": frJSON,
		"en": enJSON,
	})
}

// New builds a catalog from raw JSON bundles keyed by locale code. The default
// locale must be present.
func New(raw map[string][]byte) (*Catalog, error) {
	if _, ok := raw[DefaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %q has no bundle", DefaultLocale)
	}

	c := &Catalog{bundles: make(map[string]Bundle, len(raw))}

	// default first so the matcher falls back to it
	codes := make([]string, 0, len(raw))
	for code := range raw {
		if code != DefaultLocale {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	codes = append([]string{DefaultLocale}, codes...)

	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", code, err)
		}
		var b Bundle
		if err := json.Unmarshal(raw[code], &b); err != nil {
			return nil, fmt.Errorf("decode bundle %q: %w", code, err)
		}
		c.bundles[code] = b
		c.tags = append(c.tags, tag)
		c.codes = append(c.codes, code)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// Locales returns the supported locale codes, default first.
func (c *Catalog) Locales() []string {
	return append([]string(nil), c.codes...)
}

// Supported reports whether code names a bundle.
func (c *Catalog) Supported(code string) bool {
	_, ok := c.bundles[strings.ToLower(code)]
	return ok
}

// Bundle returns the bundle for code.
func (c *Catalog) Bundle(code string) (Bundle, bool) {
	b, ok := c.bundles[strings.ToLower(code)]
	return b, ok
}

// Negotiate picks the best supported locale for an Accept-Language header.
func (c *Catalog) Negotiate(acceptLanguage string) string {
	_, idx := language.MatchStrings(c.matcher, acceptLanguage)
	if idx < 0 || idx >= len(c.codes) {
		return DefaultLocale
	}
	return c.codes[idx]
}

// Tag returns the language tag for a supported locale code, or the default's.
func (c *Catalog) Tag(code string) language.Tag {
	for i, cc := range c.codes {
		if cc == strings.ToLower(code) {
			return c.tags[i]
		}
	}
	return c.tags[0]
}

// T translates key for locale, falling back to the default bundle and then to the key.
func (c *Catalog) T(locale, key string) string {
	if b, ok := c.bundles[strings.ToLower(locale)]; ok {
		if msg, ok := b[key]; ok {
			return msg
		}
	}
	if msg, ok := c.bundles[DefaultLocale][key]; ok {
		return msg
	}
	return key
}
