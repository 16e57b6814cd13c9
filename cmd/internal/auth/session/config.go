package session

import (
	"os"
	"strings"
	"time"
)

// Config holds the tunables of the session machine.
type Config struct {
	// Namespace prefixes the persisted record key.
	Namespace string

	// LogoutTimeout bounds the provider sign-out call. Local state is
	// cleared whether or not it completes.
	LogoutTimeout time.Duration

	// ProfileTimeout bounds the profile fetch after sign-in. On timeout
	// the session falls back to a minimal profile.
	ProfileTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Namespace:      "affittochiaro",
		LogoutTimeout:  5 * time.Second,
		ProfileTimeout: 10 * time.Second,
	}
}

// LoadConfigFromEnv reads:
//   - AFFITTO_NAMESPACE
//   - AFFITTO_SESSION_LOGOUT_TIMEOUT
//   - AFFITTO_SESSION_PROFILE_TIMEOUT
//
// Returns ErrConfig if a value is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("AFFITTO_NAMESPACE"); ok {
		v = strings.TrimSpace(v)
		if v == "" || strings.ContainsAny(v, " :/") {
			return Config{}, ErrConfig
		}
		cfg.Namespace = v
	}

	if v := os.Getenv("AFFITTO_SESSION_LOGOUT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.LogoutTimeout = d
	}

	if v := os.Getenv("AFFITTO_SESSION_PROFILE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.ProfileTimeout = d
	}

	return cfg, nil
}
