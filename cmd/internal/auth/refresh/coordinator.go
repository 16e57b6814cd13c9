// Package refresh serializes access-token refreshes.
//
// Any number of callers may ask for a refresh at the same time; at most one
// exchange with the identity provider is in flight and every caller observes
// its outcome. The coordinator never clears credentials: deciding what a
// failed refresh means is up to the caller.
package refresh

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"affittochiaro/cmd/internal/auth/credentials"
	"affittochiaro/cmd/internal/auth/provider"
	"affittochiaro/cmd/internal/metrics"
	"affittochiaro/cmd/security/token"
)

const flightKey = "refresh"

// Refresher is the slice of the provider the coordinator needs.
type Refresher interface {
	RefreshToken(ctx context.Context, oldAccess string) (provider.Tokens, error)
}

// Listener is called after a new token is installed.
type Listener func(access string)

type Coordinator struct {
	store    *credentials.Store
	provider Refresher
	log      zerolog.Logger
	metrics  *metrics.Metrics

	group singleflight.Group

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func New(store *credentials.Store, p Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		provider: p,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Refresh installs a new access token. It reports false when there is no
// token to refresh or the provider denied the exchange.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	return c.RefreshAfter(ctx, "")
}

// RefreshAfter is Refresh for a caller whose request failed with failed.
// If the store already holds a different token, some other caller's refresh
// has landed in the meantime and no new exchange is started.
//
// A caller whose ctx ends first gets false while the exchange carries on;
// it should report ctx.Err() rather than treat the result as a denial.
func (c *Coordinator) RefreshAfter(ctx context.Context, failed string) bool {
	current := c.store.AccessToken()
	if current == "" {
		c.metrics.Refresh("skipped")
		return false
	}
	if failed != "" && failed != current {
		c.log.Debug().Str("access_fp", token.Fingerprint(current)).Msg("refresh.already_installed")
		c.metrics.Refresh("skipped")
		return true
	}
	if failed == "" {
		failed = current
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		// Detached from any one caller: a waiter giving up must not abort
		// the exchange the others are waiting on.
		return c.exchange(context.WithoutCancel(ctx), failed), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.Refresh("shared")
		}
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

// exchange runs inside the flight. expected is the token the flight was
// started to replace; if it is already gone, a previous flight replaced it.
//
// The new pair is installed only if the store has not been written since
// the exchange began, so a Clear from a logout is never undone.
func (c *Coordinator) exchange(ctx context.Context, expected string) bool {
	creds, version := c.store.ReadVersion()
	old := creds.AccessToken
	if old == "" {
		c.metrics.Refresh("skipped")
		return false
	}
	if old != expected {
		c.metrics.Refresh("skipped")
		return true
	}

	c.log.Debug().Str("access_fp", token.Fingerprint(old)).Msg("refresh.start")

	tok, err := c.provider.RefreshToken(ctx, old)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", string(provider.KindOf(err))).Msg("refresh.failed")
		c.metrics.Refresh("failure")
		return false
	}
	if tok.AccessToken == "" {
		c.log.Warn().Msg("refresh.empty_token")
		c.metrics.Refresh("failure")
		return false
	}

	if !c.store.WriteIfVersion(version, tok.AccessToken, tok.RefreshToken) {
		// Cleared: the session is over. Replaced: a newer sign-in owns the
		// store and callers may retry with its token.
		current := c.store.AccessToken()
		c.log.Info().Bool("cleared", current == "").Msg("refresh.discarded")
		c.metrics.Refresh("discarded")
		return current != ""
	}
	c.metrics.Refresh("success")
	c.log.Info().Str("access_fp", token.Fingerprint(tok.AccessToken)).Msg("refresh.installed")

	c.notify(tok.AccessToken)
	return true
}

// OnRefreshed registers fn for successful refreshes. Listeners run on the
// refreshing goroutine and must not block.
func (c *Coordinator) OnRefreshed(fn Listener) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, e := range c.listeners {
				if e.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Coordinator) notify(access string) {
	c.mu.Lock()
	entries := c.listeners
	c.mu.Unlock()

	for _, e := range entries {
		e.fn(access)
	}
}
