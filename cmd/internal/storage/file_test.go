package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"affittochiaro/cmd/security/seal"
)

func testSealer(t *testing.T, pass string) *seal.Sealer {
	t.Helper()
	s, err := seal.New(pass, seal.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16})
	require.NoError(t, err)
	return s
}

func TestFileKV_Contract(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	exerciseKV(t, kv, "affittochiaro")
}

func TestFileKV_SealedContract(t *testing.T) {
	kv, err := NewFileKV(t.TempDir(), WithSealer(testSealer(t, "segreto")))
	require.NoError(t, err)
	exerciseKV(t, kv, "affittochiaro")
}

func TestFileKV_PermissionsAndLayout(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	require.NoError(t, kv.Save(context.Background(), "affittochiaro:credentials", []byte("v")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "affittochiaro:credentials.dat", entries[0].Name())

	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileKV_SealedRejectsPlaintextAndWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	plain, err := NewFileKV(dir)
	require.NoError(t, err)
	require.NoError(t, plain.Save(ctx, "a", []byte("not sealed")))

	sealed, err := NewFileKV(dir, WithSealer(testSealer(t, "one")))
	require.NoError(t, err)
	_, err = sealed.Load(ctx, "a")
	require.ErrorIs(t, err, seal.ErrInvalidSealed)

	require.NoError(t, sealed.Save(ctx, "b", []byte("secret")))
	raw, err := plain.Load(ctx, "b")
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret")

	other, err := NewFileKV(dir, WithSealer(testSealer(t, "two")))
	require.NoError(t, err)
	_, err = other.Load(ctx, "b")
	require.ErrorIs(t, err, seal.ErrDecrypt)
}

func TestNewFileKV_EmptyDir(t *testing.T) {
	_, err := NewFileKV("")
	require.Error(t, err)
}
