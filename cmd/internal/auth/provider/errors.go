package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies provider failures.
type Kind string

const (
	KindNotAuthorized    Kind = "not_authorized"
	KindUserNotConfirmed Kind = "user_not_confirmed"
	KindUsernameExists   Kind = "username_exists"
	KindCodeMismatch     Kind = "code_mismatch"
	KindExpiredCode      Kind = "expired_code"
	KindLimitExceeded    Kind = "limit_exceeded"
	KindInvalidPassword  Kind = "invalid_password"
	KindUserNotFound     Kind = "user_not_found"
	KindNotConfigured    Kind = "not_configured"
	KindUnsupported      Kind = "unsupported"
	KindNetwork          Kind = "network"
	KindUnknown          Kind = "unknown"
)

var (
	ErrNotConfigured = errors.New("provider: not configured")
	ErrUnsupported   = errors.New("provider: operation not supported")

	// ErrSessionExpired is wrapped by CurrentSession when stored credentials
	// exist but the access token is no longer accepted.
	ErrSessionExpired = errors.New("provider: session expired")
)

// Error is a classified provider failure.
type Error struct {
	Kind    Kind
	Op      string
	Code    string // provider-specific code, when the provider sent one
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("provider: %s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("provider: %s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies any error returned by a provider.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	switch {
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}
	return KindUnknown
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// codeKinds maps provider error codes onto kinds. Codes cover both the REST
// identity API and Cognito-style exception names.
var codeKinds = map[string]Kind{
	"invalid_credentials":       KindNotAuthorized,
	"unauthorized":              KindNotAuthorized,
	"not_authorized":            KindNotAuthorized,
	"NotAuthorizedException":    KindNotAuthorized,
	"session_not_active":        KindNotAuthorized,
	"refresh_reuse_detected":    KindNotAuthorized,
	"invalid_grant":             KindNotAuthorized,
	"email_not_verified":        KindUserNotConfirmed,
	"user_not_confirmed":        KindUserNotConfirmed,
	"UserNotConfirmedException": KindUserNotConfirmed,
	"conflict":                  KindUsernameExists,
	"username_exists":           KindUsernameExists,
	"UsernameExistsException":   KindUsernameExists,
	"code_mismatch":             KindCodeMismatch,
	"invalid_code":              KindCodeMismatch,
	"CodeMismatchException":     KindCodeMismatch,
	"expired_code":              KindExpiredCode,
	"ExpiredCodeException":      KindExpiredCode,
	"rate_limited":              KindLimitExceeded,
	"limit_exceeded":            KindLimitExceeded,
	"LimitExceededException":    KindLimitExceeded,
	"TooManyRequestsException":  KindLimitExceeded,
	"invalid_password":          KindInvalidPassword,
	"weak_password":             KindInvalidPassword,
	"InvalidPasswordException":  KindInvalidPassword,
	"user_not_found":            KindUserNotFound,
	"not_found":                 KindUserNotFound,
	"UserNotFoundException":     KindUserNotFound,
	"temporarily_unavailable":   KindNetwork,
	"server_busy":               KindNetwork,
	"db_unavailable":            KindNetwork,
}

// classify picks a kind from an error code, falling back to the HTTP status.
func classify(code string, status int) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	switch {
	case status == 401 || status == 403:
		return KindNotAuthorized
	case status == 404:
		return KindUserNotFound
	case status == 409:
		return KindUsernameExists
	case status == 429:
		return KindLimitExceeded
	case status == 502 || status == 503 || status == 504:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// sessionExpired reports a stored session the provider no longer accepts.
// cause is the provider's own rejection, if there was a round trip.
func sessionExpired(cause error) error {
	e := &Error{Kind: KindNotAuthorized, Op: "CurrentSession", Message: "stored session expired", Err: ErrSessionExpired}
	var pe *Error
	if errors.As(cause, &pe) {
		e.Code, e.Status = pe.Code, pe.Status
	}
	return e
}
