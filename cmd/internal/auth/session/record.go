package session

import (
	"encoding/json"
	"fmt"

	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/internal/api"
)

const recordName = "session"

// record is the persisted form of the stable state.
type record struct {
	User                *userRecord          `json:"user"`
	Identity            *identity.Identity   `json:"identity"`
	IsAuthenticated     bool                 `json:"isAuthenticated"`
	PendingConfirmation *PendingConfirmation `json:"pendingConfirmation"`
}

type userRecord struct {
	Base
	Tenant      *api.TenantProfile `json:"tenant,omitempty"`
	Agency      *api.AgencyInfo    `json:"agency,omitempty"`
	Permissions []string           `json:"permissions,omitempty"`
}

func recordOf(st State) record {
	rec := record{IsAuthenticated: st.Status == StatusAuthenticated}

	if rec.IsAuthenticated && st.Session != nil {
		u := MatchSession(st.Session,
			func(s *TenantSession) userRecord {
				p := s.Profile
				return userRecord{Base: s.Base, Tenant: &p}
			},
			func(s *AgencySession) userRecord {
				a := s.AgencyInfo
				return userRecord{Base: s.Base, Agency: &a}
			},
			func(s *AdminSession) userRecord {
				return userRecord{Base: s.Base, Permissions: s.Permissions}
			},
		)
		rec.User = &u
		if st.Identity != nil {
			id := *st.Identity
			rec.Identity = &id
		}
	}
	if st.Status == StatusPendingConfirmation && st.Pending != nil {
		p := *st.Pending
		rec.PendingConfirmation = &p
	}
	return rec
}

func encodeRecord(st State) ([]byte, error) {
	return json.Marshal(recordOf(st))
}

// decodeRecord rebuilds the stable state. An authenticated record without a
// user or identity restores as anonymous.
func decodeRecord(raw []byte) (State, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return State{}, fmt.Errorf("session: decode record: %w", err)
	}

	if rec.IsAuthenticated && rec.User != nil && rec.Identity != nil {
		u := rec.User
		var sess Session
		switch u.Role {
		case identity.RoleTenant:
			s := &TenantSession{Base: u.Base}
			if u.Tenant != nil {
				s.Profile = *u.Tenant
			}
			sess = s
		case identity.RoleAgency:
			s := &AgencySession{Base: u.Base}
			if u.Agency != nil {
				s.AgencyInfo = *u.Agency
			}
			sess = s
		case identity.RoleAdmin:
			sess = &AdminSession{Base: u.Base, Permissions: u.Permissions}
		default:
			return anonymousState(), nil
		}
		return authenticatedState(sess, *rec.Identity), nil
	}

	if rec.PendingConfirmation != nil && rec.PendingConfirmation.Email != "" {
		return pendingState(*rec.PendingConfirmation), nil
	}
	return anonymousState(), nil
}
