package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("AFFITTO_NAMESPACE", "staging")
	t.Setenv("AFFITTO_SESSION_LOGOUT_TIMEOUT", "2s")
	t.Setenv("AFFITTO_SESSION_PROFILE_TIMEOUT", "750ms")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, Config{Namespace: "staging", LogoutTimeout: 2 * time.Second, ProfileTimeout: 750 * time.Millisecond}, cfg)
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"AFFITTO_NAMESPACE":               "a:b",
		"AFFITTO_SESSION_LOGOUT_TIMEOUT":  "-5s",
		"AFFITTO_SESSION_PROFILE_TIMEOUT": "soon",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := LoadConfigFromEnv()
			require.ErrorIs(t, err, ErrConfig)
		})
	}
}
