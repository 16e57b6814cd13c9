package app

import (
	"errors"
	"fmt"

	"affittochiaro/cmd/security/token"
)

const (
	minPassphraseBytes     = 12
	minFingerprintKeyBytes = 32
)

// ValidateSecurityConfig enforces the opt-in security policy at startup.
// It fails instead of silently running with plaintext state or unkeyed
// token fingerprints.
func ValidateSecurityConfig(cfg Config) error {
	sec := cfg.Security

	if sec.RequireSealedStorage && cfg.Storage.Backend == BackendFile && len(cfg.Storage.Passphrase) < minPassphraseBytes {
		return fmt.Errorf("%w: security policy: AFFITTO_REQUIRE_SEALED_STORAGE=true but AFFITTO_STORAGE_PASSPHRASE is missing or shorter than %d bytes",
			ErrConfig, minPassphraseBytes)
	}

	if !sec.RequireFingerprintKey {
		return nil
	}
	if _, err := token.HMACKeyFromEnv(minFingerprintKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return fmt.Errorf("%w: security policy: AFFITTO_REQUIRE_FINGERPRINT_KEY=true but %s is missing", ErrConfig, token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("%w: security policy: %s is too short (min %d bytes)", ErrConfig, token.HMACEnvKey, minFingerprintKeyBytes)
		default:
			return err
		}
	}
	return nil
}
