package realtime

import "errors"

var (
	// ErrNotOpen is returned by Send when the socket is not open. The
	// message is dropped, not queued.
	ErrNotOpen = errors.New("realtime: connection not open")

	// ErrRateLimited is returned by Send when the outbound limit is hit.
	ErrRateLimited = errors.New("realtime: rate limited")

	// ErrNoToken is returned by Connect when there is no access token.
	ErrNoToken = errors.New("realtime: no access token")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("realtime: connection closed")
)
