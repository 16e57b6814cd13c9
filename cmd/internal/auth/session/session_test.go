package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/internal/api"
	"affittochiaro/cmd/internal/auth/provider"
	"affittochiaro/cmd/security/password"
)

func signedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestMatchSession(t *testing.T) {
	name := func(s Session) string {
		return MatchSession(s,
			func(s *TenantSession) string { return "tenant:" + s.Profile.FirstName },
			func(s *AgencySession) string { return "agency:" + s.AgencyInfo.Name },
			func(s *AdminSession) string { return "admin" },
		)
	}

	require.Equal(t, "tenant:Anna", name(&TenantSession{Profile: api.TenantProfile{FirstName: "Anna"}}))
	require.Equal(t, "agency:Case", name(&AgencySession{AgencyInfo: api.AgencyInfo{Name: "Case"}}))
	require.Equal(t, "admin", name(&AdminSession{}))
	require.Equal(t, "", name(nil))
}

func TestNewSession_RoleMismatchDegrades(t *testing.T) {
	id := identity.Identity{SubjectID: "u-1", Email: "a@b.com", Role: identity.RoleTenant}

	s := newSession(id, &api.AgencyInfo{ID: "ag-1"})
	ts, ok := s.(*TenantSession)
	require.True(t, ok)
	require.True(t, ts.Degraded)
	require.Equal(t, "u-1", ts.Profile.ID)
}

func TestRecord_RoundTrip(t *testing.T) {
	id := identity.Identity{SubjectID: "u-3", Email: "ag@b.com", Role: identity.RoleAgency, ProfileID: "ag-3"}
	cases := map[string]State{
		"agency": authenticatedState(&AgencySession{
			Base:       Base{ID: "u-3", Email: "ag@b.com", Role: identity.RoleAgency},
			AgencyInfo: api.AgencyInfo{ID: "ag-3", Name: "Case Chiare"},
		}, id),
		"admin": authenticatedState(&AdminSession{
			Base:        Base{ID: "u-4", Role: identity.RoleAdmin, Degraded: true},
			Permissions: []string{"listings:moderate"},
		}, identity.Identity{SubjectID: "u-4", Role: identity.RoleAdmin}),
		"pending":   pendingState(PendingConfirmation{Email: "p@b.com", Role: identity.RoleTenant}),
		"anonymous": anonymousState(),
	}

	for name, st := range cases {
		t.Run(name, func(t *testing.T) {
			raw, err := encodeRecord(st)
			require.NoError(t, err)
			got, err := decodeRecord(raw)
			require.NoError(t, err)
			require.Equal(t, st, got)
		})
	}
}

func TestRecord_Layout(t *testing.T) {
	raw, err := encodeRecord(pendingState(PendingConfirmation{Email: "p@b.com"}))
	require.NoError(t, err)
	require.JSONEq(t, `{"user":null,"identity":null,"isAuthenticated":false,"pendingConfirmation":{"email":"p@b.com"}}`, string(raw))
}

func TestRecord_IncompleteAuthenticatedIsAnonymous(t *testing.T) {
	st, err := decodeRecord([]byte(`{"user":null,"identity":null,"isAuthenticated":true}`))
	require.NoError(t, err)
	require.Equal(t, StatusAnonymous, st.Status)

	_, err = decodeRecord([]byte(`{`))
	require.Error(t, err)
}

func TestRegisterParams_Validate(t *testing.T) {
	policy := password.DefaultPolicy()
	valid := RegisterParams{Email: "a@b.com", Password: "s3cure-pass", Role: identity.RoleTenant, FirstName: "A", LastName: "B"}

	tests := []struct {
		name    string
		mutate  func(*RegisterParams)
		field   string
		message string
	}{
		{"ok", func(*RegisterParams) {}, "", ""},
		{"missing email", func(p *RegisterParams) { p.Email = "" }, "email", msgEmailRequired},
		{"bad email", func(p *RegisterParams) { p.Email = "a@" }, "email", msgEmailInvalid},
		{"short password", func(p *RegisterParams) { p.Password = "ab1" }, "password", "La password deve contenere almeno 8 caratteri"},
		{"no digits", func(p *RegisterParams) { p.Password = "onlyletters" }, "password", msgPasswordMixed},
		{"weak", func(p *RegisterParams) { p.Password = "password123" }, "password", msgPasswordWeak},
		{"admin role", func(p *RegisterParams) { p.Role = identity.RoleAdmin }, "role", msgRoleInvalid},
		{"tenant names", func(p *RegisterParams) { p.LastName = "" }, "lastName", msgLastNameRequired},
		{"agency name", func(p *RegisterParams) { p.Role = identity.RoleAgency }, "agencyName", msgAgencyRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)

			ae := validationError("Register", p.Validate(policy))
			if tt.field == "" {
				require.Nil(t, ae)
				return
			}
			require.NotNil(t, ae)
			require.Equal(t, KindValidation, ae.Kind)
			require.Equal(t, tt.field, ae.Field)
			require.Equal(t, tt.message, ae.Message)
		})
	}
}

func TestRegisterParams_Attributes(t *testing.T) {
	p := RegisterParams{Role: identity.RoleTenant, FirstName: " Anna ", LastName: "Rossi", AgencyName: "ignored", City: "Milano"}
	require.Equal(t, map[string]string{"firstName": "Anna", "lastName": "Rossi", "city": "Milano"}, p.Attributes())
}

func TestMessageFor(t *testing.T) {
	require.Equal(t, "Email o password non corretti", MessageFor(provider.KindNotAuthorized))
	require.Equal(t, "Codice di verifica non valido", MessageFor(provider.KindCodeMismatch))
	require.Equal(t, msgUnknown, MessageFor("something-else"))
}
