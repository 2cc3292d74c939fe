// Package mask provides the single redaction rule used when showing a
// previously-stored value next to its editable field. Masked text is
// display-only; it is never compared against or written back to the store.
package mask

import "strings"

const redactionChar = "X"

// Mask partially redacts a stored value for on-screen display. Values shorter
// than four characters return "", since they are too short to show anything
// safely. Longer values keep their first two and last two characters with the
// interior replaced one-for-one: "9876543210" -> "98XXXXXX10".
func Mask(value string) string {
	runes := []rune(value)
	if len(runes) < 4 {
		return ""
	}
	return string(runes[:2]) + strings.Repeat(redactionChar, len(runes)-4) + string(runes[len(runes)-2:])
}
