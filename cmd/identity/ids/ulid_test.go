package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_MonotonicWithinMillisecond(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	prev := New(now)
	require.True(t, Valid(prev))
	for i := 0; i < 100; i++ {
		next := New(now)
		require.Len(t, next, 26)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestValid_RejectsGarbage(t *testing.T) {
	require.False(t, Valid(""))
	require.False(t, Valid("not-a-ulid"))
}
