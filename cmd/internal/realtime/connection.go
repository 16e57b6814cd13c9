package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"affittochiaro/cmd/internal/clock"
	"affittochiaro/cmd/internal/metrics"
	v1 "affittochiaro/contracts/realtime/v1"
)

// TokenSource yields the current access token. credentials.Store satisfies it.
type TokenSource interface {
	AccessToken() string
}

// Connection is one logical realtime channel. It is safe for concurrent use.
//
// Handlers run one at a time, in the order events happened, on a goroutine
// owned by the Connection. They may call back into the Connection.
type Connection struct {
	base   *url.URL
	tokens TokenSource
	dialer Dialer
	clock  clock.Clock
	log    zerolog.Logger
	mt     *metrics.Metrics

	interval     time.Duration
	maxAttempts  int
	dialTimeout  time.Duration
	writeTimeout time.Duration
	limiter      *RateLimiter

	registry *Registry
	events   *dispatcher

	mu       sync.Mutex
	state    State
	sock     Socket
	attempts int
	timer    clock.Timer
	disposed bool
	// gen identifies the current socket lifecycle. Anything started for an
	// older generation (read loop, dial, scheduled reconnect) is ignored.
	gen uint64
}

type Option func(*Connection)

func WithDialer(d Dialer) Option {
	return func(c *Connection) { c.dialer = d }
}

func WithClock(cl clock.Clock) Option {
	return func(c *Connection) { c.clock = cl }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Connection) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) { c.mt = m }
}

// WithReconnect sets the fixed reconnect interval and the attempt budget.
func WithReconnect(interval time.Duration, maxAttempts int) Option {
	return func(c *Connection) {
		if interval > 0 {
			c.interval = interval
		}
		if maxAttempts >= 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

func WithTimeouts(dial, write time.Duration) Option {
	return func(c *Connection) {
		if dial > 0 {
			c.dialTimeout = dial
		}
		if write > 0 {
			c.writeTimeout = write
		}
	}
}

// WithRateLimit bounds outbound messages to limit per window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *Connection) { c.limiter = NewRateLimiter(limit, window) }
}

// WithRegistry shares a subscription registry.
func WithRegistry(r *Registry) Option {
	return func(c *Connection) { c.registry = r }
}

// New creates an idle connection to rawURL (ws:// or wss://).
func New(rawURL string, tokens TokenSource, opts ...Option) (*Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}
	if tokens == nil {
		return nil, errors.New("realtime: nil token source")
	}

	c := &Connection{
		base:         u,
		tokens:       tokens,
		dialer:       WSDialer{},
		clock:        clock.Real(),
		log:          zerolog.Nop(),
		interval:     defaultReconnectInterval,
		maxAttempts:  defaultMaxAttempts,
		dialTimeout:  defaultDialTimeout,
		writeTimeout: defaultWriteTimeout,
		state:        StateIdle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.limiter == nil {
		c.limiter = NewRateLimiter(rateLimitEvents, rateLimitWindow)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	c.events = newDispatcher(c.registry, c.log)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the reconnect attempts made since the last open.
func (c *Connection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Subscribe registers h for messages of type typ, including the local
// "connection" status events.
func (c *Connection) Subscribe(typ string, h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	return c.registry.Add(typ, h)
}

// Connect opens the socket. It is a no-op while open or connecting. An
// explicit Connect resets the attempt budget and cancels a pending
// reconnect.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.tokens.AccessToken() == "" {
		c.mu.Unlock()
		return ErrNoToken
	}
	c.stopTimerLocked()
	c.attempts = 0
	gen := c.beginDialLocked()
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

// beginDialLocked starts a new generation in the connecting state.
func (c *Connection) beginDialLocked() uint64 {
	c.gen++
	c.setStateLocked(StateConnecting)
	return c.gen
}

func (c *Connection) dial(ctx context.Context, gen uint64) error {
	token := c.tokens.AccessToken()
	if token == "" {
		c.closed(gen, ErrNoToken)
		return ErrNoToken
	}

	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	sock, err := c.dialer.Dial(dctx, c.urlFor(token))
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.disposed {
		c.mu.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		return nil
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("url", c.base.Redacted()).Msg("realtime.dial.fail")
		c.closed(gen, err)
		return err
	}
	c.sock = sock
	c.attempts = 0
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.log.Info().Str("url", c.base.Redacted()).Msg("realtime.open")
	c.emitStatus(v1.StatusConnected)
	go c.readLoop(gen, sock)
	return nil
}

func (c *Connection) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.Read(context.Background())
		if err != nil {
			c.closed(gen, err)
			return
		}

		env, err := v1.Decode(data)
		if err != nil {
			c.mt.RealtimeMessage("in", "malformed")
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("realtime.message.malformed")
			continue
		}
		c.mt.RealtimeMessage("in", "ok")
		c.events.push(env.Type, env.Payload)
	}
}

// closed handles the end of generation gen: notify, then maybe schedule a
// reconnect. It does nothing if gen is no longer current.
func (c *Connection) closed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.disposed {
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	c.log.Info().Err(cause).Msg("realtime.closed")
	c.emitStatus(v1.StatusDisconnected)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.disposed || c.state != StateClosed {
		return
	}
	if c.attempts >= c.maxAttempts {
		c.log.Warn().Int("attempts", c.attempts).Msg("realtime.reconnect.exhausted")
		return
	}

	c.attempts++
	c.setStateLocked(StateReconnecting)
	c.timer = c.clock.AfterFunc(c.interval, func() { c.reconnect(gen) })
	c.mt.RealtimeReconnect()
	c.log.Info().Int("attempt", c.attempts).Dur("in", c.interval).Msg("realtime.reconnect.scheduled")
}

func (c *Connection) reconnect(prev uint64) {
	c.mu.Lock()
	if prev != c.gen || c.disposed || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	gen := c.beginDialLocked()
	c.mu.Unlock()

	_ = c.dial(context.Background(), gen)
}

// Send writes one envelope. When the socket is not open the message is
// dropped and ErrNotOpen is returned.
func (c *Connection) Send(ctx context.Context, typ string, payload any) error {
	c.mu.Lock()
	sock := c.sock
	open := c.state == StateOpen && sock != nil
	c.mu.Unlock()

	if !open {
		c.mt.RealtimeMessage("out", "dropped")
		c.log.Warn().Str("type", typ).Msg("realtime.send.dropped")
		return ErrNotOpen
	}
	if !c.limiter.Allow(c.clock.Now()) {
		c.mt.RealtimeMessage("out", "rate_limited")
		c.log.Warn().Str("type", typ).Msg("realtime.send.rate_limited")
		return ErrRateLimited
	}

	env, err := v1.New(typ, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := sock.Write(wctx, data); err != nil {
		c.mt.RealtimeMessage("out", "error")
		return fmt.Errorf("realtime: write %q: %w", typ, err)
	}
	c.mt.RealtimeMessage("out", "ok")
	return nil
}

// Disconnect closes the socket and cancels any pending reconnect. The
// subscription registry is kept. Subscribers get a disconnected event if
// the socket was open.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	wasOpen := c.state == StateOpen
	sock := c.teardownLocked()
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	if wasOpen {
		c.log.Info().Msg("realtime.disconnect")
		c.emitStatus(v1.StatusDisconnected)
	}
}

func (c *Connection) teardownLocked() Socket {
	c.gen++
	c.stopTimerLocked()
	sock := c.sock
	c.sock = nil
	if !c.disposed {
		c.setStateLocked(StateIdle)
	}
	return sock
}

// OnTokenRefreshed re-dials an open connection so it authenticates with the
// new token. Subscribers see disconnected followed by connected; the attempt
// counter is untouched. It returns immediately.
func (c *Connection) OnTokenRefreshed(string) {
	c.mu.Lock()
	if c.disposed || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	sock := c.teardownLocked()
	gen := c.beginDialLocked()
	c.mu.Unlock()

	c.log.Info().Msg("realtime.token_rotated")
	c.emitStatus(v1.StatusDisconnected)
	go func() {
		if sock != nil {
			_ = sock.Close()
		}
		_ = c.dial(context.Background(), gen)
	}()
}

// Close disconnects and disposes the connection. Later calls to Connect
// return ErrClosed. Events already queued, including the final
// disconnected status, are still delivered.
func (c *Connection) Close() error {
	c.Disconnect()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.mu.Unlock()

	c.events.close()
	return nil
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.log.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("realtime.state")
	c.state = s
	c.mt.RealtimeState(int(s))
}

func (c *Connection) urlFor(token string) string {
	u := *c.base
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Connection) emitStatus(status string) {
	raw, _ := json.Marshal(v1.ConnectionPayload{Status: status})
	c.events.push(v1.TypeConnection, raw)
}

// dispatcher delivers events to handlers on a single goroutine, in push
// order. push never blocks.
type dispatcher struct {
	registry *Registry
	log      zerolog.Logger

	mu      sync.Mutex
	queue   []event
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

type event struct {
	typ     string
	payload json.RawMessage
}

func newDispatcher(r *Registry, log zerolog.Logger) *dispatcher {
	d := &dispatcher{
		registry: r,
		log:      log,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(typ string, payload json.RawMessage) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, event{typ: typ, payload: payload})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close stops accepting events. Queued ones are still delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)

	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				stopped := d.stopped
				d.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			ev := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.deliver(ev)
		}
	}
}

func (d *dispatcher) deliver(ev event) {
	for _, h := range d.registry.Handlers(ev.typ) {
		d.call(ev, h)
	}
}

func (d *dispatcher) call(ev event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("type", ev.typ).Interface("panic", r).Msg("realtime.handler.panic")
		}
	}()
	h(ev.payload)
}
