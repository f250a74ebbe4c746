package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, drops control characters and caps it at maxLen
// bytes without splitting a multi-byte rune. maxLen <= 0 means no cap.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return strings.TrimSpace(cleaned[:cut])
}

// NormalizeCode prepares a coupon code for lookup: sanitized, no inner
// spaces, upper-cased.
func NormalizeCode(input string) string {
	return strings.ToUpper(strings.Join(strings.Fields(SanitizeString(input, 64)), ""))
}
