package provider

import (
	"context"
	"time"

	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/internal/auth/credentials"
)

// AuthProvider is the identity provider capability.
type AuthProvider interface {
	// IsConfigured reports whether the provider can serve requests at all.
	IsConfigured() bool

	SignUp(ctx context.Context, p SignUpParams) (SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (AuthResult, error)
	ConfirmSignUp(ctx context.Context, email, code string) error
	ResendConfirmationCode(ctx context.Context, email string) error
	SignOut(ctx context.Context) error

	// CurrentSession restores a live session without user interaction.
	// It returns nil, nil when no credentials are stored, and an error
	// wrapping ErrSessionExpired when the stored access token is no longer
	// accepted. It never exchanges the refresh token itself; the caller
	// refreshes through the shared coordinator and asks again.
	CurrentSession(ctx context.Context) (*AuthResult, error)

	// RefreshToken exchanges the stored refresh token for a new pair.
	// oldAccess is the token being replaced.
	RefreshToken(ctx context.Context, oldAccess string) (Tokens, error)

	ForgotPassword(ctx context.Context, email string) error
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error
}

// CredentialReader is the read side of the credential store.
type CredentialReader interface {
	Read() (credentials.Credentials, bool)
}

// Tokens is a token pair as issued. RefreshToken is empty when the provider
// did not rotate it.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    time.Time
}

// AuthResult is a successful sign-in or session restore.
type AuthResult struct {
	Tokens   Tokens
	Identity identity.Identity
}

// SignUpParams carries registration input. Attributes hold the
// role-specific fields (tenant vs agency) and are passed through opaquely.
type SignUpParams struct {
	Email      string
	Password   string
	Role       identity.Role
	Attributes map[string]string
}

type SignUpResult struct {
	SubjectID     string
	UserConfirmed bool
}
