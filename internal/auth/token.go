// Package auth holds what the app does with a login token once the browser
// has handed it over.
package auth

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short stable identifier for a token, safe to log
// and show. Equal tokens give equal fingerprints.
func Fingerprint(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

// RedactToken keeps the first and last two characters of a token.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return token[:2] + "..." + token[len(token)-2:]
}
