package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Every email crossing into the identity provider goes through here so that
// pending-confirmation records and login attempts compare equal.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
