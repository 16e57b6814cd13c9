// Package identity holds the identity claims decoded from access tokens.
//
// An Identity comes from the access token when it is a JWT, otherwise from
// the user record the identity API returns alongside an opaque token.
package identity
