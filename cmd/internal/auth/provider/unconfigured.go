package provider

import "context"

// Unconfigured is the provider used when no identity backend is set up.
// Every operation fails with ErrNotConfigured; there is no silent fallback.
type Unconfigured struct{}

var _ AuthProvider = Unconfigured{}

func (Unconfigured) IsConfigured() bool { return false }

func (Unconfigured) SignUp(context.Context, SignUpParams) (SignUpResult, error) {
	return SignUpResult{}, notConfigured("SignUp")
}

func (Unconfigured) SignIn(context.Context, string, string) (AuthResult, error) {
	return AuthResult{}, notConfigured("SignIn")
}

func (Unconfigured) ConfirmSignUp(context.Context, string, string) error {
	return notConfigured("ConfirmSignUp")
}

func (Unconfigured) ResendConfirmationCode(context.Context, string) error {
	return notConfigured("ResendConfirmationCode")
}

func (Unconfigured) SignOut(context.Context) error { return notConfigured("SignOut") }

func (Unconfigured) CurrentSession(context.Context) (*AuthResult, error) {
	return nil, notConfigured("CurrentSession")
}

func (Unconfigured) RefreshToken(context.Context, string) (Tokens, error) {
	return Tokens{}, notConfigured("RefreshToken")
}

func (Unconfigured) ForgotPassword(context.Context, string) error {
	return notConfigured("ForgotPassword")
}

func (Unconfigured) ConfirmForgotPassword(context.Context, string, string, string) error {
	return notConfigured("ConfirmForgotPassword")
}

func notConfigured(op string) error {
	return &Error{Kind: KindNotConfigured, Op: op, Message: "identity provider is not configured", Err: ErrNotConfigured}
}
