// Package email holds address helpers shared by the account and recovery flows.
package email

import (
	"strings"
	"unicode"

	"github.com/asaskevich/govalidator"
)

// MaxLength bounds accepted addresses (RFC 5321 path limit).
const MaxLength = 254

// Normalize trims surrounding whitespace and lowercases the address so lookups
// are case-insensitive.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsValid reports whether addr passes basic email-format validation.
func IsValid(addr string) bool {
	if addr == "" || len(addr) > MaxLength {
		return false
	}
	return govalidator.IsEmail(addr)
}

// GreetingName derives a display name from the local part of an address,
// e.g. "amos.kip@example.com" -> "Amos". Falls back to "there".
func GreetingName(addr string) string {
	localPart := addr
	if at := strings.IndexByte(addr, '@'); at > 0 {
		localPart = addr[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "there"
	}
	return capitalize(parts[0])
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
