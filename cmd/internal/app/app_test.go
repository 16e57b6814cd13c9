package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"affittochiaro/cmd/internal/auth/session"
	"affittochiaro/cmd/internal/realtime"
)

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.Storage.Backend = BackendMemory
	cfg.AuthProvider = ProviderNone
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNew_Wiring(t *testing.T) {
	cfg := memoryConfig()
	cfg.APIBaseURL = "http://127.0.0.1:1"
	cfg.RealtimeURL = "ws://127.0.0.1:1/ws"
	a := newTestApp(t, cfg)

	require.Equal(t, session.StatusAnonymous, a.Session().Snapshot().Status)

	_, err := a.API()
	require.NoError(t, err)
	conn, err := a.Realtime()
	require.NoError(t, err)
	require.Equal(t, realtime.StateIdle, conn.State())

	// Token refresh listener plus the session follower.
	require.Len(t, a.stops, 2)

	v := a.status()
	require.Equal(t, "anonymous", v.Status)
	require.Equal(t, "idle", v.Realtime)
	require.Empty(t, v.AccessToken)
}

func TestNew_KeepPolicySkipsRefreshListener(t *testing.T) {
	cfg := memoryConfig()
	cfg.RealtimeURL = "ws://127.0.0.1:1/ws"
	cfg.Realtime.TokenPolicy = PolicyKeep
	a := newTestApp(t, cfg)

	require.Len(t, a.stops, 1)
}

func TestNew_Unavailable(t *testing.T) {
	a := newTestApp(t, memoryConfig())

	_, err := a.API()
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = a.Realtime()
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNew_RealtimeWithoutTokenStaysIdle(t *testing.T) {
	cfg := memoryConfig()
	cfg.RealtimeURL = "ws://127.0.0.1:1/ws"
	a := newTestApp(t, cfg)

	conn, err := a.Realtime()
	require.NoError(t, err)
	require.ErrorIs(t, conn.Connect(context.Background()), realtime.ErrNoToken)
	require.Equal(t, realtime.StateIdle, conn.State())
}

func TestRegisterHTTP(t *testing.T) {
	a := newTestApp(t, memoryConfig())

	mux := http.NewServeMux()
	registerHTTP(mux, a)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, body := get("/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok\n", body)

	code, _ = get("/readyz")
	require.Equal(t, http.StatusOK, code)

	code, body = get("/session")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"anonymous"}`, body)

	code, body = get("/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "affitto_realtime_state")
}

// backend fakes the identity API and the REST API on one server.
type backend struct {
	logins  atomic.Int32
	logouts atomic.Int32
	srv     *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}

	user := map[string]any{"id": "u-1", "email": "anna@example.com", "role": "tenant", "profile_id": "t-1", "email_verified": true}
	authorized := func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer acc-1" }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.logins.Add(1)
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "good-pass1" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "invalid_credentials", "message": "nope"}})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]any{
			"user":    user,
			"session": map[string]any{"access_token": "acc-1", "refresh_token": "ref-1"},
		})
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			writeTestJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "unauthorized"}})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"user": user})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		b.logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /tenants/t-1", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": "t-1", "firstName": "Anna", "lastName": "Rossi"}})
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRun_SessionLifecycle(t *testing.T) {
	t.Setenv("AFFITTO_LOG_LEVEL", "error")
	b := newBackend(t)
	dir := t.TempDir()

	run := func(args ...string) (StatusView, error) {
		args = append(args, "--storage", "file", "--storage-dir", dir, "--auth-url", b.srv.URL, "--api-url", b.srv.URL, "--json")
		var out bytes.Buffer
		err := Run(context.Background(), args, strings.NewReader(""), &out)
		var v StatusView
		if err == nil {
			require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
		}
		return v, err
	}

	v, err := run("login", "--email", "Anna@Example.com", "--password", "wrong-pass1")
	require.Error(t, err)
	require.Equal(t, "Email o password non corretti", ErrorMessage(err))

	v, err = run("login", "--email", "Anna@Example.com", "--password", "good-pass1")
	require.NoError(t, err)
	require.Equal(t, "authenticated", v.Status)
	require.Equal(t, "u-1", v.UserID)
	require.Equal(t, "tenant", v.Role)
	require.False(t, v.Degraded)
	require.NotEmpty(t, v.AccessToken)
	require.NotContains(t, v.AccessToken, "acc-1")

	// A new process restores the stored session.
	v, err = run("status")
	require.NoError(t, err)
	require.Equal(t, "authenticated", v.Status)
	require.Equal(t, "anna@example.com", v.Email)

	v, err = run("logout")
	require.NoError(t, err)
	require.Equal(t, "anonymous", v.Status)
	require.Equal(t, int32(1), b.logouts.Load())

	v, err = run("status")
	require.NoError(t, err)
	require.Equal(t, "anonymous", v.Status)
	require.Equal(t, int32(2), b.logins.Load())
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), nil, nil, &out))
	require.Contains(t, out.String(), "Usage: affittochiaro <command>")
	require.Contains(t, out.String(), "confirm-reset")

	err := Run(context.Background(), []string{"fly"}, nil, io.Discard)
	require.ErrorIs(t, err, ErrUsage)

	err = Run(context.Background(), []string{"status", "--no-such-flag"}, nil, io.Discard)
	require.ErrorIs(t, err, ErrUsage)

	out.Reset()
	require.NoError(t, Run(context.Background(), []string{"login", "--help"}, nil, &out))
	require.Contains(t, out.String(), "--password-stdin")
}

func TestRun_GetWithoutAPI(t *testing.T) {
	t.Setenv("AFFITTO_LOG_LEVEL", "error")
	err := Run(context.Background(), []string{"get", "/tenants/t-1", "--storage", "memory", "--auth-provider", "none"}, nil, io.Discard)
	require.ErrorIs(t, err, ErrUnavailable)

	err = Run(context.Background(), []string{"get", "--storage", "memory"}, nil, io.Discard)
	require.ErrorIs(t, err, ErrUsage)
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "Troppi tentativi", ErrorMessage(&session.AuthError{Message: "Troppi tentativi"}))
	require.Equal(t, "boom", ErrorMessage(errors.New("boom")))
}
