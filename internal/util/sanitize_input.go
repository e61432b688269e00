package util

import "strings"

// NormalizeIdentifier canonicalizes a login identifier (email address)
// before lookup or hashing: trimmed, lower-cased, inner whitespace removed.
func NormalizeIdentifier(identifier string) string {
	s := strings.TrimSpace(identifier)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// SanitizeCode strips the separators users tend to type into code fields
// ("123 456", "123-456") and returns the bare digits.
func SanitizeCode(code string) string {
	s := strings.TrimSpace(code)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
