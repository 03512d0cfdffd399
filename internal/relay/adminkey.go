package relay

import (
	"crypto/subtle"
	"strings"
)

// ValidAdminKey reports whether key matches the configured admin key. An
// empty configured key disables admin access.
func ValidAdminKey(expected, key string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(key))) == 1
}
