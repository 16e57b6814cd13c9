// Package token derives log-safe fingerprints from bearer credentials.
//
// Access and refresh tokens must never reach a log line. Components log a
// short fingerprint instead, so two log lines can be correlated to the same
// token without revealing it.
//
// Environment:
//   - AFFITTO_TOKEN_FINGERPRINT_KEY: when set, fingerprints are HMAC-SHA256
//     keyed digests instead of plain SHA-256.
package token
