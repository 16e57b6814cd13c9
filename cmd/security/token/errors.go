package token

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("token fingerprint key missing")
	ErrHMACKeyTooShort = errors.New("token fingerprint key too short")
)
