// Package strcase converts Go identifier casing into wire-format casing.
package strcase

import (
	"strings"
	"unicode"
)

// ToLowerSnake converts CamelCase and mixedCase identifiers to snake_case.
// Acronym runs stay intact, so "HTTPServer" becomes "http_server" and
// "userID" becomes "user_id".
func ToLowerSnake(s string) string {
	runes := []rune(s)

	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && wordBoundary(runes, i) {
			b.WriteRune('_')
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// wordBoundary reports whether an underscore belongs before runes[i]. A break
// happens after a lower or digit rune, and between an acronym and the word
// that follows it.
func wordBoundary(runes []rune, i int) bool {
	prev := runes[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}

	return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
}
