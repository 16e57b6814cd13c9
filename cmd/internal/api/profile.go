package api

import (
	"context"
	"fmt"
	"net/url"

	"affittochiaro/cmd/identity"
)

// Profile is the role-specific profile. It is one of *TenantProfile,
// *AgencyInfo or *AdminProfile.
type Profile interface {
	ProfileRole() identity.Role
}

type TenantProfile struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	City      string `json:"city,omitempty"`
	Verified  bool   `json:"verified"`
}

func (*TenantProfile) ProfileRole() identity.Role { return identity.RoleTenant }

type AgencyInfo struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	Name      string `json:"name"`
	VATNumber string `json:"vatNumber,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	City      string `json:"city,omitempty"`
	Verified  bool   `json:"verified"`
}

func (*AgencyInfo) ProfileRole() identity.Role { return identity.RoleAgency }

type AdminProfile struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions"`
}

func (*AdminProfile) ProfileRole() identity.Role { return identity.RoleAdmin }

// ProfileService fetches profiles through the pipeline.
type ProfileService struct {
	p *Pipeline
}

func NewProfileService(p *Pipeline) *ProfileService {
	return &ProfileService{p: p}
}

// ProfilePath returns the resource path of a role's profile.
func ProfilePath(role identity.Role, id string) (string, error) {
	id = url.PathEscape(id)
	switch role {
	case identity.RoleTenant:
		return "/tenants/" + id, nil
	case identity.RoleAgency:
		return "/agencies/" + id, nil
	case identity.RoleAdmin:
		return "/admin/users/" + id, nil
	default:
		return "", fmt.Errorf("api: unknown role %q", role)
	}
}

func (s *ProfileService) GetProfile(ctx context.Context, role identity.Role, id string) (Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("api: empty profile id")
	}
	path, err := ProfilePath(role, id)
	if err != nil {
		return nil, err
	}

	switch role {
	case identity.RoleTenant:
		v, err := Decode[TenantProfile](s.p.Get(ctx, path))
		if err != nil {
			return nil, err
		}
		return &v, nil
	case identity.RoleAgency:
		v, err := Decode[AgencyInfo](s.p.Get(ctx, path))
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		v, err := Decode[AdminProfile](s.p.Get(ctx, path))
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}
