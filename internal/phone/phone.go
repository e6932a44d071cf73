// Package phone turns user-supplied phone numbers into WhatsApp chat identifiers.
package phone

import (
	"strings"
	"unicode"
)

// DefaultCountryCode is prepended to bare 10-digit national numbers.
const DefaultCountryCode = "92"

// ChatSuffix is the user server suffix WhatsApp expects on individual chat IDs.
const ChatSuffix = "@c.us"

// Normalize strips whitespace, '+' and '-' from raw. If what remains is exactly
// 10 characters long and does not already start with countryCode, countryCode
// is prepended. Anything else passes through unchanged.
func Normalize(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '+', r == '-':
			return -1
		case isSpace(r):
			return -1
		}
		return r
	}, raw)

	if !strings.HasPrefix(cleaned, countryCode) && len(cleaned) == 10 {
		cleaned = countryCode + cleaned
	}
	return cleaned
}

// ChatID returns the canonical chat identifier ("<digits>@c.us") for raw.
func ChatID(raw, countryCode string) string {
	return Normalize(raw, countryCode) + ChatSuffix
}

// StripSuffix returns the user part of a chat identifier.
func StripSuffix(chatID string) string {
	return strings.TrimSuffix(chatID, ChatSuffix)
}

// isSpace matches Unicode white space plus the byte order mark.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
