package session

import (
	"errors"
	"fmt"

	"affittochiaro/cmd/internal/auth/provider"
)

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrConfirmationRequired is returned by Login when the account exists
	// but the email is not confirmed yet. The machine is then pending.
	ErrConfirmationRequired = errors.New("email confirmation required")
)

// KindValidation marks input rejected before any provider call.
const KindValidation provider.Kind = "validation"

// AuthError is a failed authentication operation. Message is the localized
// text shown to the user.
type AuthError struct {
	Kind    provider.Kind
	Op      string
	Field   string // set for validation failures
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("session: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsConfigError reports whether err means no identity provider is available.
func IsConfigError(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind == provider.KindNotConfigured
	}
	return errors.Is(err, provider.ErrNotConfigured)
}

func authError(op string, err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	k := provider.KindOf(err)
	return &AuthError{Kind: k, Op: op, Message: MessageFor(k), Err: err}
}
