// Package credentials holds the access/refresh token pair.
//
// Store is a write-through cache over a storage.KV. Reads never touch the
// backend and never fail; writes update memory first and then persist.
// Persistence failures are logged, not returned.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"affittochiaro/cmd/internal/storage"
	"affittochiaro/cmd/security/token"
)

const recordName = "credentials"

// Credentials is the token pair. RefreshToken may be empty.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Store is safe for concurrent use. Last writer wins.
type Store struct {
	mu      sync.RWMutex
	creds   Credentials
	version uint64

	// persistMu orders backend writes; each flush stores the latest
	// in-memory pair, so the backend converges on the last write.
	persistMu sync.Mutex

	kv      storage.KV
	key     string
	log     zerolog.Logger
	timeout time.Duration
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithNamespace sets the key prefix (default "affittochiaro").
func WithNamespace(ns string) Option {
	return func(s *Store) { s.key = storage.Key(ns, recordName) }
}

// WithPersistTimeout bounds each backend call (default 5s).
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Open loads any persisted credentials from kv. A nil kv yields a
// memory-only store. A missing or unreadable record starts empty.
func Open(ctx context.Context, kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		key:     storage.Key("affittochiaro", recordName),
		log:     zerolog.Nop(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if kv == nil {
		return s
	}

	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := kv.Load(lctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s
	case err != nil:
		s.log.Error().Err(err).Str("key", s.key).Msg("credentials.load_failed")
		return s
	}

	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("credentials.decode_failed")
		return s
	}
	s.creds = c
	s.log.Debug().Str("access_fp", token.Fingerprint(c.AccessToken)).Msg("credentials.restored")
	return s
}

// New returns an empty memory-only store.
func New(opts ...Option) *Store {
	return Open(context.Background(), nil, opts...)
}

// Read returns the current pair and whether an access token is present.
func (s *Store) Read() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.creds.AccessToken != ""
}

// AccessToken returns the current access token or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// Write installs a new access token. An empty refresh keeps the stored one.
func (s *Store) Write(access, refresh string) {
	s.mu.Lock()
	s.installLocked(access, refresh)
	s.mu.Unlock()

	s.log.Debug().Str("access_fp", token.Fingerprint(access)).Msg("credentials.write")
	s.flush()
}

// WriteIfVersion is Write, applied only while Version still equals v. It
// reports whether the pair was installed.
func (s *Store) WriteIfVersion(v uint64, access, refresh string) bool {
	s.mu.Lock()
	if s.version != v {
		s.mu.Unlock()
		s.log.Debug().Uint64("want", v).Msg("credentials.write_stale")
		return false
	}
	s.installLocked(access, refresh)
	s.mu.Unlock()

	s.log.Debug().Str("access_fp", token.Fingerprint(access)).Msg("credentials.write")
	s.flush()
	return true
}

func (s *Store) installLocked(access, refresh string) {
	next := Credentials{AccessToken: access, RefreshToken: refresh}
	if refresh == "" {
		next.RefreshToken = s.creds.RefreshToken
	}
	s.creds = next
	s.version++
}

// Clear drops both tokens.
func (s *Store) Clear() {
	s.mu.Lock()
	s.creds = Credentials{}
	s.version++
	s.mu.Unlock()

	s.log.Debug().Msg("credentials.clear")
	s.flush()
}

// Version increases on every Write and Clear.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ReadVersion returns the pair together with the version it belongs to.
func (s *Store) ReadVersion() (Credentials, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.version
}

func (s *Store) flush() {
	if s.kv == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	c, _ := s.Read()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if c.AccessToken == "" && c.RefreshToken == "" {
		if err := s.kv.Delete(ctx, s.key); err != nil {
			s.log.Error().Err(err).Str("key", s.key).Msg("credentials.persist_failed")
		}
		return
	}

	raw, err := json.Marshal(c)
	if err != nil {
		s.log.Error().Err(err).Msg("credentials.encode_failed")
		return
	}
	if err := s.kv.Save(ctx, s.key, raw); err != nil {
		s.log.Error().Err(err).Str("key", s.key).Msg("credentials.persist_failed")
	}
}
