package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"affittochiaro/cmd/internal/auth/credentials"
)

type tokenServer struct {
	t       *testing.T
	access  string
	grants  []string
	refresh string
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.NoError(s.t, r.ParseForm())
	grant := r.PostForm.Get("grant_type")
	s.grants = append(s.grants, grant)

	switch grant {
	case "password":
		switch r.PostForm.Get("password") {
		case "good":
		case "unconfirmed":
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "User is not confirmed."})
			return
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Incorrect username or password."})
			return
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != s.refresh {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Refresh token revoked."})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  s.access,
		"token_type":    "Bearer",
		"refresh_token": s.refresh,
		"expires_in":    3600,
	})
}

func newOAuth2Provider(t *testing.T, ts *tokenServer, store *credentials.Store, opts ...OAuth2Option) *OAuth2Provider {
	t.Helper()
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	cfg := &oauth2.Config{
		ClientID: "affittochiaro-cli",
		Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}
	p, err := NewOAuth2Provider(cfg, store, append([]OAuth2Option{WithOAuth2HTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return p
}

func TestOAuth2Provider_SignIn(t *testing.T) {
	ts := &tokenServer{t: t, refresh: "r-1", access: jwtFor(t, jwt.MapClaims{"sub": "u-1", "email": "a@b.com", "custom:role": "tenant"})}
	p := newOAuth2Provider(t, ts, credentials.New())
	ctx := context.Background()

	res, err := p.SignIn(ctx, "a@b.com", "good")
	require.NoError(t, err)
	require.Equal(t, "r-1", res.Tokens.RefreshToken)
	require.Equal(t, "u-1", res.Identity.SubjectID)
	require.False(t, res.Tokens.ExpiresAt.IsZero())

	_, err = p.SignIn(ctx, "a@b.com", "bad")
	require.True(t, IsKind(err, KindNotAuthorized), "got %v", err)

	_, err = p.SignIn(ctx, "a@b.com", "unconfirmed")
	require.True(t, IsKind(err, KindUserNotConfirmed), "got %v", err)
}

func TestOAuth2Provider_RefreshToken(t *testing.T) {
	ts := &tokenServer{t: t, refresh: "r-1", access: jwtFor(t, jwt.MapClaims{"sub": "u-1"})}
	store := credentials.New()
	p := newOAuth2Provider(t, ts, store)
	ctx := context.Background()

	_, err := p.RefreshToken(ctx, "old")
	require.True(t, IsKind(err, KindNotAuthorized))
	require.Empty(t, ts.grants)

	store.Write("old", "r-1")
	tok, err := p.RefreshToken(ctx, "old")
	require.NoError(t, err)
	require.Equal(t, ts.access, tok.AccessToken)
	require.Equal(t, []string{"refresh_token"}, ts.grants)

	store.Write("old", "r-revoked")
	_, err = p.RefreshToken(ctx, "old")
	require.True(t, IsKind(err, KindNotAuthorized))
}

func TestOAuth2Provider_CurrentSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	live := jwtFor(t, jwt.MapClaims{"sub": "u-1", "exp": now.Add(time.Hour).Unix()})
	expired := jwtFor(t, jwt.MapClaims{"sub": "u-1", "exp": now.Add(-time.Minute).Unix()})

	ts := &tokenServer{t: t, refresh: "r-1", access: live}
	store := credentials.New()
	p := newOAuth2Provider(t, ts, store, WithNowTime(func() time.Time { return now }))
	ctx := context.Background()

	s, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	require.Nil(t, s)

	store.Write(live, "r-1")
	s, err = p.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, live, s.Tokens.AccessToken)
	require.Empty(t, ts.grants)

	store.Write(expired, "r-1")
	s, err = p.CurrentSession(ctx)
	require.Nil(t, s)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Empty(t, ts.grants)

	store.Write("opaque", "r-1")
	_, err = p.CurrentSession(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestOAuth2Provider_Unsupported(t *testing.T) {
	ts := &tokenServer{t: t}
	p := newOAuth2Provider(t, ts, credentials.New())
	ctx := context.Background()

	_, err := p.SignUp(ctx, SignUpParams{})
	require.ErrorIs(t, err, ErrUnsupported)
	require.ErrorIs(t, p.ConfirmSignUp(ctx, "a", "b"), ErrUnsupported)
	require.ErrorIs(t, p.ForgotPassword(ctx, "a"), ErrUnsupported)
	require.NoError(t, p.SignOut(ctx))
}

func TestNewOAuth2Provider_Validation(t *testing.T) {
	_, err := NewOAuth2Provider(nil, credentials.New())
	require.Error(t, err)
	_, err = NewOAuth2Provider(&oauth2.Config{ClientID: "x"}, credentials.New())
	require.Error(t, err)
}
