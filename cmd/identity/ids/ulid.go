// Package ids provides sortable identifiers for requests, realtime envelopes and subscriptions.
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID string (26 chars) stamped with now.
// IDs minted within the same millisecond stay strictly increasing, which keeps
// request logs and envelope traces ordered.
func New(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond; fall back to a fresh reader.
		return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	}
	return id.String()
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
