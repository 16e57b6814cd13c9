package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/security/token"
)

const maxAuthBodyBytes = 1 << 20

// HTTPProvider is a JSON client for a REST identity API.
//
// Auth calls go straight to the transport: they never pass through the
// request pipeline, so a 401 here is an answer, not a trigger for refresh.
type HTTPProvider struct {
	base     *url.URL
	client   *http.Client
	creds    CredentialReader
	platform string
	log      zerolog.Logger
}

var _ AuthProvider = (*HTTPProvider)(nil)

type HTTPOption func(*HTTPProvider)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

func WithHTTPLogger(l zerolog.Logger) HTTPOption {
	return func(p *HTTPProvider) { p.log = l }
}

// WithPlatform sets the platform tag sent on login and refresh (default "cli").
func WithPlatform(platform string) HTTPOption {
	return func(p *HTTPProvider) { p.platform = platform }
}

// NewHTTPProvider builds a provider rooted at baseURL. creds supplies the
// stored refresh token for refresh, restore and sign-out.
func NewHTTPProvider(baseURL string, creds CredentialReader, opts ...HTTPOption) (*HTTPProvider, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider: invalid auth base url %q", baseURL)
	}
	if creds == nil {
		return nil, fmt.Errorf("provider: nil credential reader")
	}

	p := &HTTPProvider{
		base:     u,
		client:   &http.Client{Timeout: 15 * time.Second},
		creds:    creds,
		platform: "cli",
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *HTTPProvider) IsConfigured() bool { return p != nil && p.base != nil }

func (p *HTTPProvider) SignUp(ctx context.Context, in SignUpParams) (SignUpResult, error) {
	var out registerResponse
	err := p.call(ctx, "SignUp", http.MethodPost, "/auth/register", "", registerRequest{
		Email:      in.Email,
		Password:   in.Password,
		Role:       string(in.Role),
		Attributes: in.Attributes,
	}, &out)
	if err != nil {
		return SignUpResult{}, err
	}
	return SignUpResult{SubjectID: out.UserID, UserConfirmed: out.UserConfirmed}, nil
}

func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	var out loginResponse
	err := p.call(ctx, "SignIn", http.MethodPost, "/auth/login", "", loginRequest{
		Email:    email,
		Password: password,
		Platform: p.platform,
	}, &out)
	if err != nil {
		return AuthResult{}, err
	}
	if out.Session.AccessToken == "" {
		return AuthResult{}, &Error{Kind: KindUnknown, Op: "SignIn", Message: "login response without access token"}
	}

	id, err := p.resolveIdentity(ctx, out.Session.AccessToken, &out.User)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Tokens: tokensFrom(out.Session), Identity: id}, nil
}

func (p *HTTPProvider) ConfirmSignUp(ctx context.Context, email, code string) error {
	return p.call(ctx, "ConfirmSignUp", http.MethodPost, "/auth/confirm", "", confirmRequest{Email: email, Code: code}, nil)
}

func (p *HTTPProvider) ResendConfirmationCode(ctx context.Context, email string) error {
	return p.call(ctx, "ResendConfirmationCode", http.MethodPost, "/auth/confirm/resend", "", emailRequest{Email: email}, nil)
}

func (p *HTTPProvider) SignOut(ctx context.Context) error {
	c, ok := p.creds.Read()
	if !ok {
		return nil
	}
	return p.call(ctx, "SignOut", http.MethodPost, "/auth/logout", c.AccessToken, logoutRequest{RefreshToken: c.RefreshToken}, nil)
}

// CurrentSession validates the stored access token against /me.
func (p *HTTPProvider) CurrentSession(ctx context.Context) (*AuthResult, error) {
	c, ok := p.creds.Read()
	if !ok {
		return nil, nil
	}

	me, err := p.me(ctx, c.AccessToken)
	if IsKind(err, KindNotAuthorized) {
		return nil, sessionExpired(err)
	}
	if err != nil {
		return nil, err
	}

	id, err := p.resolveIdentity(ctx, c.AccessToken, &me.User)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Tokens: Tokens{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken}, Identity: id}, nil
}

func (p *HTTPProvider) RefreshToken(ctx context.Context, oldAccess string) (Tokens, error) {
	c, _ := p.creds.Read()
	if c.RefreshToken == "" {
		return Tokens{}, &Error{Kind: KindNotAuthorized, Op: "RefreshToken", Message: "no refresh token stored"}
	}

	p.log.Debug().Str("access_fp", token.Fingerprint(oldAccess)).Msg("provider.refresh")

	var out refreshResponse
	err := p.call(ctx, "RefreshToken", http.MethodPost, "/auth/refresh", "", refreshRequest{
		RefreshToken: c.RefreshToken,
		Platform:     p.platform,
	}, &out)
	if err != nil {
		return Tokens{}, err
	}
	return tokensFrom(out.Session), nil
}

func (p *HTTPProvider) ForgotPassword(ctx context.Context, email string) error {
	return p.call(ctx, "ForgotPassword", http.MethodPost, "/auth/password/forgot", "", emailRequest{Email: email}, nil)
}

func (p *HTTPProvider) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	return p.call(ctx, "ConfirmForgotPassword", http.MethodPost, "/auth/password/confirm", "", confirmResetRequest{
		Email:       email,
		Code:        code,
		NewPassword: newPassword,
	}, nil)
}

func (p *HTTPProvider) me(ctx context.Context, access string) (meResponse, error) {
	var out meResponse
	err := p.call(ctx, "CurrentSession", http.MethodGet, "/me", access, nil, &out)
	return out, err
}

// resolveIdentity prefers the access token's claims and falls back to the
// user record for opaque tokens.
func (p *HTTPProvider) resolveIdentity(ctx context.Context, access string, user *userResponse) (identity.Identity, error) {
	if id, err := identity.DecodeAccessToken(access); err == nil {
		return id, nil
	}

	if user == nil || user.ID == "" {
		me, err := p.me(ctx, access)
		if err != nil {
			return identity.Identity{}, err
		}
		user = &me.User
	}

	id := identity.Identity{
		SubjectID:     user.ID,
		Email:         identity.NormalizeEmail(user.Email),
		ProfileID:     user.ProfileID,
		EmailVerified: user.EmailVerified,
		Role:          identity.RoleTenant,
	}
	if r, err := identity.ParseRole(user.Role); err == nil {
		id.Role = r
	}
	return id, nil
}

func tokensFrom(s sessionResponse) Tokens {
	return Tokens{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.AccessExpiresAt,
	}
}

func (p *HTTPProvider) call(ctx context.Context, op, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindUnknown, Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(b)
	}

	u := *p.base
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Kind: KindUnknown, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn().Err(err).Str("op", op).Msg("provider.transport_error")
		return &Error{Kind: KindNetwork, Op: op, Message: "identity provider unreachable", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBodyBytes))
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Message: "read response", Err: err}
	}

	p.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("provider.call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindUnknown, Op: op, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func decodeError(op string, status int, raw []byte) error {
	var er errorResponse
	if json.Unmarshal(raw, &er) != nil {
		er = errorResponse{}
	}
	msg := er.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{
		Kind:    classify(er.Error.Code, status),
		Op:      op,
		Code:    er.Error.Code,
		Message: msg,
		Status:  status,
	}
}
