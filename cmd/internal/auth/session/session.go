package session

import (
	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/internal/api"
)

// Session is the authenticated user. It is exactly one of *TenantSession,
// *AgencySession or *AdminSession; use MatchSession or a type switch that
// covers all three.
type Session interface {
	Info() Base
	session()
}

// Base is shared by every session variant.
type Base struct {
	ID    string        `json:"id"`
	Email string        `json:"email"`
	Role  identity.Role `json:"role"`

	// Degraded is set when the profile could not be fetched and the
	// session was built from the token claims alone.
	Degraded bool `json:"degraded,omitempty"`
}

type TenantSession struct {
	Base
	Profile api.TenantProfile
}

type AgencySession struct {
	Base
	AgencyInfo api.AgencyInfo
}

type AdminSession struct {
	Base
	Permissions []string
}

func (s *TenantSession) Info() Base { return s.Base }
func (s *AgencySession) Info() Base { return s.Base }
func (s *AdminSession) Info() Base  { return s.Base }

func (*TenantSession) session() {}
func (*AgencySession) session() {}
func (*AdminSession) session()  {}

// MatchSession calls the callback for the variant of s. A nil session
// returns the zero value.
func MatchSession[T any](s Session,
	tenant func(*TenantSession) T,
	agency func(*AgencySession) T,
	admin func(*AdminSession) T,
) T {
	var zero T
	switch v := s.(type) {
	case *TenantSession:
		return tenant(v)
	case *AgencySession:
		return agency(v)
	case *AdminSession:
		return admin(v)
	default:
		return zero
	}
}

// newSession builds the variant for a fetched profile. A nil profile, or one
// for a different role, yields the minimal session for the identity.
func newSession(id identity.Identity, p api.Profile) Session {
	base := Base{ID: id.SubjectID, Email: id.Email, Role: id.Role}

	switch v := p.(type) {
	case *api.TenantProfile:
		if id.Role == identity.RoleTenant && v != nil {
			return &TenantSession{Base: base, Profile: *v}
		}
	case *api.AgencyInfo:
		if id.Role == identity.RoleAgency && v != nil {
			return &AgencySession{Base: base, AgencyInfo: *v}
		}
	case *api.AdminProfile:
		if id.Role == identity.RoleAdmin && v != nil {
			return &AdminSession{Base: base, Permissions: append([]string(nil), v.Permissions...)}
		}
	}
	return minimalSession(id)
}

// minimalSession is the degraded shape used when the profile is unavailable.
func minimalSession(id identity.Identity) Session {
	base := Base{ID: id.SubjectID, Email: id.Email, Role: id.Role, Degraded: true}

	switch id.Role {
	case identity.RoleAgency:
		return &AgencySession{Base: base, AgencyInfo: api.AgencyInfo{
			ID:     id.ProfileKey(),
			UserID: id.SubjectID,
			Email:  id.Email,
		}}
	case identity.RoleAdmin:
		return &AdminSession{Base: base, Permissions: []string{}}
	default:
		base.Role = identity.RoleTenant
		return &TenantSession{Base: base, Profile: api.TenantProfile{
			ID:     id.ProfileKey(),
			UserID: id.SubjectID,
			Email:  id.Email,
		}}
	}
}
