package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestDecodeAccessToken(t *testing.T) {
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   Identity
	}{
		{
			name:   "plain claims",
			claims: jwt.MapClaims{"sub": "u-1", "email": " A@B.com ", "role": "agency", "profile_id": "ag-9", "email_verified": true},
			want:   Identity{SubjectID: "u-1", Email: "a@b.com", Role: RoleAgency, ProfileID: "ag-9", EmailVerified: true},
		},
		{
			name:   "prefixed claims",
			claims: jwt.MapClaims{"sub": "u-2", "email": "x@y.it", "custom:role": "ADMIN", "custom:profileId": "p-2", "email_verified": "true"},
			want:   Identity{SubjectID: "u-2", Email: "x@y.it", Role: RoleAdmin, ProfileID: "p-2", EmailVerified: true},
		},
		{
			name:   "unknown role falls back to tenant",
			claims: jwt.MapClaims{"sub": "u-3", "role": "landlord"},
			want:   Identity{SubjectID: "u-3", Role: RoleTenant},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeAccessToken(signed(t, tc.claims))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeAccessToken_Rejects(t *testing.T) {
	_, err := DecodeAccessToken("")
	require.True(t, IsInvalidInput(err))

	_, err = DecodeAccessToken("opaque-token")
	require.True(t, IsInvalidInput(err))

	_, err = DecodeAccessToken(signed(t, jwt.MapClaims{"email": "a@b.com"}))
	require.True(t, IsInvalidInput(err))
}

func TestIdentity_ProfileKey(t *testing.T) {
	require.Equal(t, "p-1", Identity{SubjectID: "s", ProfileID: "p-1"}.ProfileKey())
	require.Equal(t, "s", Identity{SubjectID: "s"}.ProfileKey())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Tenant ")
	require.NoError(t, err)
	require.Equal(t, RoleTenant, r)

	_, err = ParseRole("owner")
	require.Error(t, err)
}

func TestAccessTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	got, ok := AccessTokenExpiry(signed(t, jwt.MapClaims{"sub": "u", "exp": exp.Unix()}))
	require.True(t, ok)
	require.True(t, got.Equal(exp))

	_, ok = AccessTokenExpiry(signed(t, jwt.MapClaims{"sub": "u"}))
	require.False(t, ok)

	_, ok = AccessTokenExpiry("opaque-token")
	require.False(t, ok)
}
