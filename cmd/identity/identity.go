package identity

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleTenant Role = "tenant"
	RoleAgency Role = "agency"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTenant, RoleAgency, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole parses a role string case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", OpError{Op: "identity.ParseRole", Kind: ErrInvalidInput, Msg: fmt.Sprintf("unknown role %q", s)}
	}
	return r, nil
}

// Identity is the decoded, read-only view of an access token's claims.
type Identity struct {
	SubjectID     string `json:"subjectId"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	ProfileID     string `json:"profileId,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// ProfileKey returns the id used to fetch the role-specific profile.
// It prefers the explicit profile id and falls back to the subject.
func (i Identity) ProfileKey() string {
	if strings.TrimSpace(i.ProfileID) != "" {
		return i.ProfileID
	}
	return i.SubjectID
}
