package v1

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"type":"listing.updated","payload":{"id":"l-1"}}`))
	require.NoError(t, err)
	require.Equal(t, "listing.updated", env.Type)
	require.JSONEq(t, `{"id":"l-1"}`, string(env.Payload))

	env, err = Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	require.Equal(t, json.RawMessage("null"), env.Payload)
}

func TestDecode_Malformed(t *testing.T) {
	for _, in := range []string{``, `not json`, `[]`, `{"payload":1}`, `{"type":"  "}`, `{"type":42}`} {
		_, err := Decode([]byte(in))
		require.Error(t, err, in)
	}
}

func TestNew(t *testing.T) {
	env, err := New(TypeConnection, ConnectionPayload{Status: StatusConnected})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"connection","payload":{"status":"connected"}}`, string(raw))

	_, err = New("", nil)
	require.Error(t, err)

	_, err = New("x", func() {})
	require.Error(t, err)
}
