package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func parsedFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	require.Equal(t, "affittochiaro", cfg.Namespace)
	require.Equal(t, 3*time.Second, cfg.Realtime.ReconnectInterval)
	require.Equal(t, 5, cfg.Realtime.MaxAttempts)
	require.Equal(t, PolicyReconnect, cfg.Realtime.TokenPolicy)
	require.Equal(t, BackendFile, cfg.Storage.Backend)
	require.NotEmpty(t, cfg.Storage.Dir)
	require.Equal(t, ProviderHTTP, cfg.AuthProvider)
	require.Equal(t, FormatJSON, cfg.Log.Format)
}

func TestLoadConfig_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://file.example.com
namespace: from-file
storage:
  backend: memory
realtime:
  reconnect_interval: 1s
  max_attempts: 2
  token_policy: keep
log:
  level: debug
`), 0o600))

	t.Setenv("AFFITTO_CONFIG", path)
	t.Setenv("AFFITTO_NAMESPACE", "from-env")
	t.Setenv("AFFITTO_REALTIME_MAX_ATTEMPTS", "7")
	t.Setenv("AFFITTO_OAUTH2_SCOPES", "openid, email,,")

	cfg, err := LoadConfig(parsedFlags(t, "--namespace", "from-flag", "--realtime-url", "wss://rt.example.com/ws"))
	require.NoError(t, err)

	require.Equal(t, "https://file.example.com", cfg.APIBaseURL)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, time.Second, cfg.Realtime.ReconnectInterval)
	require.Equal(t, PolicyKeep, cfg.Realtime.TokenPolicy)
	require.Equal(t, "debug", cfg.Log.Level)

	require.Equal(t, 7, cfg.Realtime.MaxAttempts, "env beats file")
	require.Equal(t, "from-flag", cfg.Namespace, "flag beats env")
	require.Equal(t, "wss://rt.example.com/ws", cfg.RealtimeURL)
	require.Equal(t, []string{"openid", "email"}, cfg.OAuth2.Scopes)
}

func TestLoadConfig_ConfigFlagBeatsEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.yaml")
	flagFile := filepath.Join(dir, "flag.yaml")
	require.NoError(t, os.WriteFile(envFile, []byte("namespace: env-file\n"), 0o600))
	require.NoError(t, os.WriteFile(flagFile, []byte("namespace: flag-file\n"), 0o600))

	t.Setenv("AFFITTO_CONFIG", envFile)
	cfg, err := LoadConfig(parsedFlags(t, "--config", flagFile))
	require.NoError(t, err)
	require.Equal(t, "flag-file", cfg.Namespace)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad duration", map[string]string{"AFFITTO_REALTIME_RECONNECT_INTERVAL": "soon"}, nil},
		{"negative duration", map[string]string{"AFFITTO_HTTP_TIMEOUT": "-1s"}, nil},
		{"bad bool", map[string]string{"AFFITTO_REQUIRE_SEALED_STORAGE": "maybe"}, nil},
		{"negative db", map[string]string{"AFFITTO_REDIS_DB": "-1"}, nil},
		{"namespace with colon", map[string]string{"AFFITTO_NAMESPACE": "a:b"}, nil},
		{"unknown backend", nil, []string{"--storage", "s3"}},
		{"redis without addr", nil, []string{"--storage", "redis"}},
		{"postgres without url", nil, []string{"--storage", "postgres"}},
		{"token policy", nil, []string{"--token-policy", "sometimes"}},
		{"zero attempts", nil, []string{"--max-attempts", "0"}},
		{"http realtime url", nil, []string{"--realtime-url", "http://rt.example.com"}},
		{"ws api url", nil, []string{"--api-url", "ws://api.example.com"}},
		{"oauth2 without token url", nil, []string{"--auth-provider", "oauth2"}},
		{"unknown provider", nil, []string{"--auth-provider", "ldap"}},
		{"log format", nil, []string{"--log-format", "xml"}},
		{"log level", nil, []string{"--log-level", "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(parsedFlags(t, tt.args...))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrConfig), "got %v", err)
		})
	}
}

func TestLoadConfig_UnknownFileKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nmespace: typo\n"), 0o600))

	_, err := LoadConfig(parsedFlags(t, "--config", path))
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg, err := LoadConfig(parsedFlags(t, "--config", path))
	require.NoError(t, err)
	require.Equal(t, "affittochiaro", cfg.Namespace)
}

func TestValidateSecurityConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateSecurityConfig(cfg))

	cfg.Security.RequireSealedStorage = true
	require.ErrorIs(t, ValidateSecurityConfig(cfg), ErrConfig)

	cfg.Storage.Passphrase = "correct horse battery"
	require.NoError(t, ValidateSecurityConfig(cfg))

	cfg.Security.RequireFingerprintKey = true
	t.Setenv("AFFITTO_TOKEN_FINGERPRINT_KEY", "")
	require.ErrorIs(t, ValidateSecurityConfig(cfg), ErrConfig)

	t.Setenv("AFFITTO_TOKEN_FINGERPRINT_KEY", "too-short")
	require.ErrorIs(t, ValidateSecurityConfig(cfg), ErrConfig)

	t.Setenv("AFFITTO_TOKEN_FINGERPRINT_KEY", "0123456789abcdef0123456789abcdef")
	require.NoError(t, ValidateSecurityConfig(cfg))
}
