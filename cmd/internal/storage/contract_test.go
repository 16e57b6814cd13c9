package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// exerciseKV runs the behaviour every backend must share.
func exerciseKV(t *testing.T, kv KV, prefix string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := Key(prefix, "session")

	_, err := kv.Load(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Save(ctx, key, []byte(`{"isAuthenticated":false}`)))
	got, err := kv.Load(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"isAuthenticated":false}`, string(got))

	require.NoError(t, kv.Save(ctx, key, []byte(`{"isAuthenticated":true}`)))
	got, err = kv.Load(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"isAuthenticated":true}`, string(got))

	require.NoError(t, kv.Delete(ctx, key))
	_, err = kv.Load(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	require.NoError(t, kv.Delete(ctx, key))

	require.ErrorIs(t, kv.Save(ctx, "  ", []byte("x")), ErrInvalidKey)
}
