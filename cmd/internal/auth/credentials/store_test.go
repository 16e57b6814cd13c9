package credentials

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"affittochiaro/cmd/internal/storage"
)

func TestStore_ReadWriteClear(t *testing.T) {
	s := New()

	_, ok := s.Read()
	require.False(t, ok)

	s.Write("a1", "r1")
	c, ok := s.Read()
	require.True(t, ok)
	require.Equal(t, Credentials{AccessToken: "a1", RefreshToken: "r1"}, c)

	s.Write("a2", "")
	c, _ = s.Read()
	require.Equal(t, Credentials{AccessToken: "a2", RefreshToken: "r1"}, c)
	require.Equal(t, "a2", s.AccessToken())

	s.Clear()
	c, ok = s.Read()
	require.False(t, ok)
	require.Equal(t, Credentials{}, c)
	require.Equal(t, uint64(3), s.Version())
}

func TestStore_WriteIfVersion(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	s := Open(ctx, kv)

	s.Write("a1", "r1")
	c, v := s.ReadVersion()
	require.Equal(t, "a1", c.AccessToken)

	require.True(t, s.WriteIfVersion(v, "a2", ""))
	c, _ = s.Read()
	require.Equal(t, Credentials{AccessToken: "a2", RefreshToken: "r1"}, c)

	// The pair moved on since v was read: nothing is installed or persisted.
	s.Clear()
	require.False(t, s.WriteIfVersion(v, "a3", "r3"))
	_, ok := s.Read()
	require.False(t, ok)
	_, err := kv.Load(ctx, "affittochiaro:credentials")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_PersistsAndRestores(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()

	s := Open(ctx, kv, WithNamespace("test"))
	s.Write("access", "refresh")

	raw, err := kv.Load(ctx, "test:credentials")
	require.NoError(t, err)
	require.JSONEq(t, `{"accessToken":"access","refreshToken":"refresh"}`, string(raw))

	restored := Open(ctx, kv, WithNamespace("test"))
	c, ok := restored.Read()
	require.True(t, ok)
	require.Equal(t, "refresh", c.RefreshToken)

	restored.Clear()
	_, err = kv.Load(ctx, "test:credentials")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CorruptRecordStartsEmpty(t *testing.T) {
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Save(context.Background(), "affittochiaro:credentials", []byte("{nope")))

	s := Open(context.Background(), kv)
	_, ok := s.Read()
	require.False(t, ok)
}

type failingKV struct{}

func (failingKV) Load(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingKV) Save(context.Context, string, []byte) error   { return errors.New("disk gone") }
func (failingKV) Delete(context.Context, string) error         { return errors.New("disk gone") }

func TestStore_BackendFailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	s := Open(context.Background(), failingKV{}, WithLogger(zerolog.New(&buf)))

	s.Write("a", "r")
	c, ok := s.Read()
	require.True(t, ok)
	require.Equal(t, "a", c.AccessToken)
	require.Contains(t, buf.String(), "credentials.persist_failed")
	require.NotContains(t, buf.String(), `"a"`)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := Open(context.Background(), storage.NewMemoryKV())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					s.Write("tok", "ref")
				} else {
					_, _ = s.Read()
				}
			}
		}(i)
	}
	wg.Wait()

	c, ok := s.Read()
	require.True(t, ok)
	require.Equal(t, "tok", c.AccessToken)
	require.Equal(t, uint64(8*50), s.Version())
}
