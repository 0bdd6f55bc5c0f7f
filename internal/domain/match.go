package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName lowercases, trims and strips diacritics so "Alcalá de Henares"
// and "alcala de henares" compare equal.
func FoldName(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)
	return s
}

// FindByName scans records for name. An exact match wins; otherwise the first
// record equal under FoldName is returned.
func FindByName(records []LocationRecord, name string) (LocationRecord, bool) {
	if name == "" {
		return LocationRecord{}, false
	}
	for _, r := range records {
		if r.Name == name {
			return r, true
		}
	}
	folded := FoldName(name)
	for _, r := range records {
		if FoldName(r.Name) == folded {
			return r, true
		}
	}
	return LocationRecord{}, false
}
