// Package provider defines the identity provider capability consumed by the
// session machine and the refresh coordinator, plus two adapters:
//
//   - HTTPProvider talks JSON to a REST identity API (/auth/*, /me).
//   - OAuth2Provider uses the OAuth2 password and refresh grants, with
//     optional OIDC ID-token verification.
//
// Provider failures are reported as *Error values carrying a Kind; callers
// classify them with KindOf and never parse messages.
package provider
