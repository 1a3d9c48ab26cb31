// Package masking redacts payment references before they reach the
// audit trail.
package masking

import (
	"strings"
	"unicode"
)

const maskToken = "****"

// MaskSecret redacts a reference while keeping its last four characters,
// e.g. "4111 1111 1111 1234" becomes "****1234". Whitespace is ignored.
func MaskSecret(value string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)
	if compact == "" {
		return ""
	}

	runes := []rune(compact)
	if len(runes) <= 4 {
		return maskToken
	}
	return maskToken + string(runes[len(runes)-4:])
}
