package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "typed", err: &Error{Kind: KindExpiredCode}, want: KindExpiredCode},
		{name: "wrapped typed", err: fmt.Errorf("login: %w", &Error{Kind: KindUserNotConfirmed}), want: KindUserNotConfirmed},
		{name: "not configured", err: ErrNotConfigured, want: KindNotConfigured},
		{name: "unsupported", err: ErrUnsupported, want: KindUnsupported},
		{name: "deadline", err: context.DeadlineExceeded, want: KindNetwork},
		{name: "other", err: errors.New("boom"), want: KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	require.Equal(t, KindNotAuthorized, classify("invalid_credentials", 401))
	require.Equal(t, KindUserNotConfirmed, classify("UserNotConfirmedException", 400))
	require.Equal(t, KindCodeMismatch, classify("CodeMismatchException", 400))
	require.Equal(t, KindLimitExceeded, classify("", 429))
	require.Equal(t, KindUsernameExists, classify("", 409))
	require.Equal(t, KindNetwork, classify("", 503))
	require.Equal(t, KindUnknown, classify("", 500))
}

func TestUnconfigured(t *testing.T) {
	var p AuthProvider = Unconfigured{}
	require.False(t, p.IsConfigured())

	_, err := p.SignIn(context.Background(), "a@b.com", "x")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.True(t, IsKind(err, KindNotConfigured))

	s, err := p.CurrentSession(context.Background())
	require.Nil(t, s)
	require.ErrorIs(t, err, ErrNotConfigured)
}
