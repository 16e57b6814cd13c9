package app

import "errors"

var (
	// ErrConfig marks invalid runtime configuration.
	ErrConfig = errors.New("app: invalid config")
	// ErrUsage marks a bad command line.
	ErrUsage = errors.New("app: usage")
	// ErrUnavailable marks a command whose backing component is not configured.
	ErrUnavailable = errors.New("app: not configured")
)
