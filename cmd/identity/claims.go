package identity

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names accepted for each identity field, in lookup order.
// Identity providers differ on prefixes ("custom:role" vs "role").
var (
	roleClaims      = []string{"role", "custom:role", "custom:userRole"}
	profileClaims   = []string{"profile_id", "profileId", "custom:profileId"}
	emailClaims     = []string{"email"}
	verifiedClaims  = []string{"email_verified"}
	subjectClaims   = []string{"sub"}
	defaultRoleHint = RoleTenant
)

// DecodeAccessToken decodes identity claims from a JWT without verifying its signature.
//
// Verification is the API's job: the client only needs the claims to route the
// user to the right profile. A token that is not a JWT, or that lacks a subject,
// is rejected with ErrInvalidInput.
func DecodeAccessToken(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, OpError{Op: "identity.DecodeAccessToken", Kind: ErrInvalidInput, Msg: "empty token"}
	}

	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return Identity{}, OpError{Op: "identity.DecodeAccessToken", Kind: ErrInvalidInput, Msg: err.Error()}
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, OpError{Op: "identity.DecodeAccessToken", Kind: ErrInvalidInput, Msg: "unexpected claims type"}
	}
	return FromClaims(claims)
}

// AccessTokenExpiry returns the exp claim of an unverified JWT.
// ok is false when the token is not a JWT or carries no exp.
func AccessTokenExpiry(raw string) (exp time.Time, ok bool) {
	tok, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	t, err := tok.Claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

// FromClaims builds an Identity from a generic claims map.
// A missing or unknown role falls back to tenant, the least privileged role.
func FromClaims(claims map[string]any) (Identity, error) {
	id := Identity{
		SubjectID:     firstString(claims, subjectClaims),
		Email:         NormalizeEmail(firstString(claims, emailClaims)),
		ProfileID:     firstString(claims, profileClaims),
		EmailVerified: firstBool(claims, verifiedClaims),
		Role:          defaultRoleHint,
	}
	if id.SubjectID == "" {
		return Identity{}, OpError{Op: "identity.FromClaims", Kind: ErrInvalidInput, Msg: "missing sub"}
	}
	if r, err := ParseRole(firstString(claims, roleClaims)); err == nil {
		id.Role = r
	}
	return id, nil
}

func firstString(claims map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := claims[k]; ok {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstBool(claims map[string]any, keys []string) bool {
	for _, k := range keys {
		switch t := claims[k].(type) {
		case bool:
			return t
		case string:
			b, err := strconv.ParseBool(t)
			if err == nil {
				return b
			}
		}
	}
	return false
}
