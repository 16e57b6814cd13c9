// Package password holds the client-side password policy applied before a
// password is sent to the identity provider (registration and password reset).
//
// The policy is a courtesy check: the provider remains the authority, but
// rejecting obviously invalid input locally saves a round trip and yields a
// localized message instead of a provider error.
package password
