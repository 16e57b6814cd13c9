package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int

	// RequireMixed demands at least one letter and one digit.
	RequireMixed bool
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// DefaultPolicy mirrors the identity provider's default pool policy.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      256,
		RequireMixed:   true,
		RejectVeryWeak: true,
	}
}

// PolicyFromEnv loads the policy from environment variables.
//
// Env surface:
// - AFFITTO_PASSWORD_MIN_LEN
// - AFFITTO_PASSWORD_MAX_LEN
// - AFFITTO_PASSWORD_REQUIRE_MIXED (true/false)
// - AFFITTO_PASSWORD_REJECT_VERY_WEAK (true/false)
func PolicyFromEnv() (Policy, error) {
	p := DefaultPolicy()

	if v, ok := os.LookupEnv("AFFITTO_PASSWORD_MIN_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 1024)
		if err != nil {
			return Policy{}, fmt.Errorf("AFFITTO_PASSWORD_MIN_LEN: %w", err)
		}
		p.MinLength = n
	}

	if v, ok := os.LookupEnv("AFFITTO_PASSWORD_MAX_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 4096)
		if err != nil {
			return Policy{}, fmt.Errorf("AFFITTO_PASSWORD_MAX_LEN: %w", err)
		}
		p.MaxLength = n
	}

	if v, ok := os.LookupEnv("AFFITTO_PASSWORD_REQUIRE_MIXED"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Policy{}, fmt.Errorf("AFFITTO_PASSWORD_REQUIRE_MIXED: %w", err)
		}
		p.RequireMixed = b
	}

	if v, ok := os.LookupEnv("AFFITTO_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Policy{}, fmt.Errorf("AFFITTO_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		p.RejectVeryWeak = b
	}

	if p.MinLength > p.MaxLength {
		return Policy{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			p.MinLength,
			p.MaxLength,
		)
	}

	return p, nil
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
