package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"affittochiaro/cmd/identity"
)

// OAuth2Provider signs in with the resource-owner password grant and
// refreshes with the refresh-token grant. Account lifecycle operations
// (sign-up, confirmation, password reset) are not part of OAuth2 and
// return ErrUnsupported.
type OAuth2Provider struct {
	cfg        *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	creds      CredentialReader
	httpClient *http.Client
	now        func() time.Time
	skew       time.Duration
	log        zerolog.Logger
}

var _ AuthProvider = (*OAuth2Provider)(nil)

type OAuth2Option func(*OAuth2Provider)

// WithIDTokenVerifier verifies the id_token of every grant and takes the
// identity from its claims.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) OAuth2Option {
	return func(p *OAuth2Provider) { p.verifier = v }
}

func WithOAuth2HTTPClient(c *http.Client) OAuth2Option {
	return func(p *OAuth2Provider) { p.httpClient = c }
}

func WithOAuth2Logger(l zerolog.Logger) OAuth2Option {
	return func(p *OAuth2Provider) { p.log = l }
}

// WithNowTime overrides the clock used to judge token expiry.
func WithNowTime(now func() time.Time) OAuth2Option {
	return func(p *OAuth2Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func NewOAuth2Provider(cfg *oauth2.Config, creds CredentialReader, opts ...OAuth2Option) (*OAuth2Provider, error) {
	if cfg == nil || cfg.ClientID == "" || cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("provider: oauth2 client id and token url are required")
	}
	if creds == nil {
		return nil, fmt.Errorf("provider: nil credential reader")
	}
	p := &OAuth2Provider{
		cfg:   cfg,
		creds: creds,
		now:   time.Now,
		skew:  30 * time.Second,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// DiscoverOIDC builds an OAuth2Provider from the issuer's discovery
// document, with ID-token verification enabled.
func DiscoverOIDC(ctx context.Context, issuer, clientID, clientSecret string, creds CredentialReader, opts ...OAuth2Option) (*OAuth2Provider, error) {
	op, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("provider: oidc discovery: %w", err)
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     op.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
	}
	opts = append([]OAuth2Option{WithIDTokenVerifier(op.Verifier(&oidc.Config{ClientID: clientID}))}, opts...)
	return NewOAuth2Provider(cfg, creds, opts...)
}

func (p *OAuth2Provider) IsConfigured() bool { return p != nil && p.cfg != nil }

func (p *OAuth2Provider) ctx(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *OAuth2Provider) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	tok, err := p.cfg.PasswordCredentialsToken(p.ctx(ctx), email, password)
	if err != nil {
		return AuthResult{}, oauth2Error("SignIn", err)
	}
	return p.result(ctx, tok)
}

func (p *OAuth2Provider) RefreshToken(ctx context.Context, oldAccess string) (Tokens, error) {
	c, _ := p.creds.Read()
	if c.RefreshToken == "" {
		return Tokens{}, &Error{Kind: KindNotAuthorized, Op: "RefreshToken", Message: "no refresh token stored"}
	}

	// An empty access token forces the source to hit the token endpoint.
	tok, err := p.cfg.TokenSource(p.ctx(ctx), &oauth2.Token{RefreshToken: c.RefreshToken}).Token()
	if err != nil {
		return Tokens{}, oauth2Error("RefreshToken", err)
	}
	return tokensFromOAuth2(tok), nil
}

// CurrentSession reuses a stored access token that is not about to expire.
func (p *OAuth2Provider) CurrentSession(ctx context.Context) (*AuthResult, error) {
	c, ok := p.creds.Read()
	if !ok {
		return nil, nil
	}

	exp, ok := identity.AccessTokenExpiry(c.AccessToken)
	if !ok || !exp.After(p.now().Add(p.skew)) {
		return nil, sessionExpired(nil)
	}
	id, err := identity.DecodeAccessToken(c.AccessToken)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: "CurrentSession", Message: "undecodable access token", Err: err}
	}
	return &AuthResult{Tokens: Tokens{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken, ExpiresAt: exp}, Identity: id}, nil
}

// SignOut only forgets tokens locally; the grant has no revocation step.
func (p *OAuth2Provider) SignOut(context.Context) error {
	p.log.Debug().Msg("provider.oauth2.sign_out")
	return nil
}

func (p *OAuth2Provider) SignUp(context.Context, SignUpParams) (SignUpResult, error) {
	return SignUpResult{}, unsupported("SignUp")
}

func (p *OAuth2Provider) ConfirmSignUp(context.Context, string, string) error {
	return unsupported("ConfirmSignUp")
}

func (p *OAuth2Provider) ResendConfirmationCode(context.Context, string) error {
	return unsupported("ResendConfirmationCode")
}

func (p *OAuth2Provider) ForgotPassword(context.Context, string) error {
	return unsupported("ForgotPassword")
}

func (p *OAuth2Provider) ConfirmForgotPassword(context.Context, string, string, string) error {
	return unsupported("ConfirmForgotPassword")
}

func (p *OAuth2Provider) result(ctx context.Context, tok *oauth2.Token) (AuthResult, error) {
	tokens := tokensFromOAuth2(tok)

	if p.verifier != nil && tokens.IDToken != "" {
		idt, err := p.verifier.Verify(ctx, tokens.IDToken)
		if err != nil {
			return AuthResult{}, &Error{Kind: KindNotAuthorized, Op: "VerifyIDToken", Message: "id token verification failed", Err: err}
		}
		var claims map[string]any
		if err := idt.Claims(&claims); err != nil {
			return AuthResult{}, &Error{Kind: KindUnknown, Op: "VerifyIDToken", Message: "id token claims", Err: err}
		}
		id, err := identity.FromClaims(claims)
		if err != nil {
			return AuthResult{}, &Error{Kind: KindUnknown, Op: "VerifyIDToken", Message: "id token identity", Err: err}
		}
		return AuthResult{Tokens: tokens, Identity: id}, nil
	}

	id, err := identity.DecodeAccessToken(tokens.AccessToken)
	if err != nil && tokens.IDToken != "" {
		id, err = identity.DecodeAccessToken(tokens.IDToken)
	}
	if err != nil {
		return AuthResult{}, &Error{Kind: KindUnknown, Op: "DecodeIdentity", Message: "no decodable identity in grant", Err: err}
	}
	return AuthResult{Tokens: tokens, Identity: id}, nil
}

func tokensFromOAuth2(tok *oauth2.Token) Tokens {
	t := Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if raw, ok := tok.Extra("id_token").(string); ok {
		t.IDToken = raw
	}
	return t
}

func oauth2Error(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &Error{Kind: KindOf(err), Op: op, Err: err}
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	kind := classify(re.ErrorCode, status)
	desc := strings.ToLower(re.ErrorDescription)
	switch {
	case strings.Contains(desc, "not confirmed"):
		kind = KindUserNotConfirmed
	case strings.Contains(desc, "attempts exceeded"):
		kind = KindLimitExceeded
	}
	if kind == KindUnknown && status == http.StatusBadRequest {
		kind = KindNotAuthorized
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Code:    re.ErrorCode,
		Message: re.ErrorDescription,
		Status:  status,
		Err:     err,
	}
}

func unsupported(op string) error {
	return &Error{Kind: KindUnsupported, Op: op, Message: "not available with the oauth2 provider", Err: ErrUnsupported}
}
