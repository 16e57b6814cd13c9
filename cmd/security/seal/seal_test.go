package seal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	s, err := New("correct horse", testParams())
	require.NoError(t, err)

	blob, err := s.Seal("affittochiaro:credentials", []byte(`{"accessToken":"a"}`))
	require.NoError(t, err)
	require.True(t, IsSealed(blob))
	require.NotContains(t, string(blob), "accessToken")

	plain, err := s.Open("affittochiaro:credentials", blob)
	require.NoError(t, err)
	require.Equal(t, `{"accessToken":"a"}`, string(plain))
}

func TestOpen_WrongPassphrase(t *testing.T) {
	s1, err := New("one", testParams())
	require.NoError(t, err)
	s2, err := New("two", testParams())
	require.NoError(t, err)

	blob, err := s1.Seal("k", []byte("secret"))
	require.NoError(t, err)

	_, err = s2.Open("k", blob)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestOpen_NameIsBound(t *testing.T) {
	s, err := New("pass", testParams())
	require.NoError(t, err)

	blob, err := s.Seal("a", []byte("secret"))
	require.NoError(t, err)

	_, err = s.Open("b", blob)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestOpen_Truncated(t *testing.T) {
	s, err := New("pass", testParams())
	require.NoError(t, err)

	_, err = s.Open("k", []byte("AFS1short"))
	require.ErrorIs(t, err, ErrInvalidSealed)

	_, err = s.Open("k", []byte("plain json value that is long enough to pass the length check....."))
	require.ErrorIs(t, err, ErrInvalidSealed)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", testParams())
	require.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = New("x", Params{})
	require.Error(t, err)
}

func TestParamsFromEnv(t *testing.T) {
	t.Setenv("AFFITTO_SEAL_MEMORY_KIB", "16384")
	t.Setenv("AFFITTO_SEAL_ITERATIONS", "2")
	t.Setenv("AFFITTO_SEAL_PARALLELISM", "1")
	t.Setenv("AFFITTO_SEAL_SALT_LEN", "24")

	p, err := ParamsFromEnv()
	require.NoError(t, err)
	require.Equal(t, Params{MemoryKiB: 16384, Iterations: 2, Parallelism: 1, SaltLength: 24}, p)

	t.Setenv("AFFITTO_SEAL_PARALLELISM", "300")
	_, err = ParamsFromEnv()
	require.Error(t, err)
}
