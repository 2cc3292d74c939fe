package intake

import (
	"strings"
	"unicode"
)

// NormalizeIdentifier uppercases a registration number or VIN and strips all
// whitespace. Identifiers are always normalized before storage, comparison or
// duplicate checking.
func NormalizeIdentifier(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// digitsOnly keeps the digit sequence of a phone number for matching.
func digitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
