package util

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lower-cases an address so it can be used as a store key.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsEmail reports whether s is a bare address ("a@b.c"), not a display-name form.
func IsEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// HashIdentifier returns a stable, non-reversible token for analytics sinks.
func HashIdentifier(s string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(s)))
	return hex.EncodeToString(sum[:])
}

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// ContainsSuspicious flags markup or template characters in free-text input.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
