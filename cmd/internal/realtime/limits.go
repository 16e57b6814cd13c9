package realtime

import (
	"time"

	v1 "affittochiaro/contracts/realtime/v1"
)

const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = v1.MaxFrameBytes

	// Reconnect defaults.
	defaultReconnectInterval = 3 * time.Second
	defaultMaxAttempts       = 5

	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second

	// Outbound rate limit (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
