package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	require.True(t, rl.Allow(t0))
	require.True(t, rl.Allow(t0.Add(100*time.Millisecond)))
	require.True(t, rl.Allow(t0.Add(200*time.Millisecond)))
	require.False(t, rl.Allow(t0.Add(300*time.Millisecond)))

	// The first event leaves the window.
	require.True(t, rl.Allow(t0.Add(time.Second+50*time.Millisecond)))
	require.False(t, rl.Allow(t0.Add(time.Second+60*time.Millisecond)))
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	require.Equal(t, rateLimitEvents, rl.limit)
	require.Equal(t, rateLimitWindow, rl.window)
}
