// Package identity normalizes caller-supplied identity ids so that the same
// person typed twice maps to one profile.
package identity

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmpty is returned when an identity id is blank after normalization.
var ErrEmpty = errors.New("identity id is empty")

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Normalize lowercases an id, strips diacritics and joins whitespace runs with
// a single underscore ("  Jan  Novák " -> "jan_novak").
func Normalize(id string) string {
	id = RemoveDiacritics(id)
	id = strings.ToLower(id)
	return strings.Join(strings.Fields(id), "_")
}

// Parse normalizes an id and rejects blank ones.
func Parse(id string) (string, error) {
	n := Normalize(id)
	if n == "" {
		return "", ErrEmpty
	}
	return n, nil
}
