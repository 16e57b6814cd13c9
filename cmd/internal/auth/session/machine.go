package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/internal/api"
	"affittochiaro/cmd/internal/auth/credentials"
	"affittochiaro/cmd/internal/auth/provider"
	"affittochiaro/cmd/internal/metrics"
	"affittochiaro/cmd/internal/storage"
	"affittochiaro/cmd/security/password"
)

// ErrSuperseded is returned when a later operation (usually Logout) ran
// while this one was waiting on the provider. Its result is discarded.
var ErrSuperseded = errors.New("session: operation superseded")

// ProfileFetcher loads the role-specific profile.
type ProfileFetcher interface {
	GetProfile(ctx context.Context, role identity.Role, id string) (api.Profile, error)
}

// Refresher runs the shared token refresh; failed is the access token that
// was rejected.
type Refresher interface {
	RefreshAfter(ctx context.Context, failed string) bool
}

// Machine is the authentication state machine. It is safe for concurrent use.
type Machine struct {
	p        provider.AuthProvider
	creds    *credentials.Store
	profiles ProfileFetcher
	refresh  Refresher
	policy   password.Policy
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Metrics

	kv  storage.KV
	key string

	mu    sync.Mutex
	state State
	// seq increases on every operation that commits a result. An operation
	// only commits if seq has not moved since it started.
	seq uint64

	persistMu sync.Mutex

	watchMu   sync.Mutex
	notifyMu  sync.Mutex
	watchers  []watcher
	nextWatch uint64
}

type watcher struct {
	id uint64
	fn func(State)
}

type Option func(*Machine)

func WithProfiles(f ProfileFetcher) Option {
	return func(m *Machine) { m.profiles = f }
}

// WithRefresher lets CheckSession renew an expired access token. Without
// one an expired session restores as anonymous.
func WithRefresher(r Refresher) Option {
	return func(m *Machine) { m.refresh = r }
}

// WithStorage persists the stable state in kv.
func WithStorage(kv storage.KV) Option {
	return func(m *Machine) { m.kv = kv }
}

func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

func WithPasswordPolicy(p password.Policy) Option {
	return func(m *Machine) { m.policy = p }
}

// New builds a machine and restores the persisted state, if any. A nil
// provider behaves as an unconfigured one; a nil store is memory-only.
func New(ctx context.Context, p provider.AuthProvider, creds *credentials.Store, opts ...Option) *Machine {
	m := &Machine{
		p:      p,
		creds:  creds,
		policy: password.DefaultPolicy(),
		cfg:    DefaultConfig(),
		log:    zerolog.Nop(),
		state:  anonymousState(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.p == nil {
		m.p = provider.Unconfigured{}
	}
	if m.creds == nil {
		m.creds = credentials.New()
	}
	if m.cfg.Namespace == "" {
		m.cfg.Namespace = DefaultConfig().Namespace
	}
	m.key = storage.Key(m.cfg.Namespace, recordName)

	m.restore(ctx)
	return m
}

func (m *Machine) restore(ctx context.Context) {
	if m.kv == nil {
		return
	}

	raw, err := m.kv.Load(ctx, m.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return
	case err != nil:
		m.log.Error().Err(err).Str("key", m.key).Msg("session.restore_failed")
		return
	}

	st, err := decodeRecord(raw)
	if err != nil {
		m.log.Warn().Err(err).Str("key", m.key).Msg("session.restore_failed")
		return
	}
	m.state = st
	m.log.Debug().Str("status", string(st.Status)).Msg("session.restored")
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch registers fn to receive the state after every transition. fn runs
// outside the machine's lock and may call Snapshot.
func (m *Machine) Watch(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.watchMu.Lock()
	m.nextWatch++
	id := m.nextWatch
	m.watchers = append(m.watchers, watcher{id: id, fn: fn})
	m.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.watchMu.Lock()
			defer m.watchMu.Unlock()
			for i, w := range m.watchers {
				if w.id == id {
					m.watchers = append(m.watchers[:i:i], m.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// Login signs in. On success the machine is authenticated, with a minimal
// session if the profile could not be fetched. An unconfirmed account moves
// the machine to pending confirmation and returns ErrConfirmationRequired.
func (m *Machine) Login(ctx context.Context, email, pw string) error {
	const op = "Login"

	in := loginInput{Email: identity.NormalizeEmail(email), Password: pw}
	if err := in.Validate(); err != nil {
		return m.fail(validationError(op, err))
	}
	if !m.p.IsConfigured() {
		return m.fail(notConfigured(op))
	}

	seq, prev := m.begin(StatusAuthenticating)

	res, err := m.p.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		if provider.IsKind(err, provider.KindUserNotConfirmed) {
			pending := PendingConfirmation{Email: in.Email}
			if prev.Pending != nil && prev.Pending.Email == in.Email {
				pending.Role = prev.Pending.Role
			}
			if !m.commit(seq, pendingState(pending), nil) {
				return ErrSuperseded
			}
			m.log.Info().Str("email", in.Email).Msg("session.login.unconfirmed")
			return ErrConfirmationRequired
		}
		return m.failFrom(seq, prev, authError(op, err))
	}

	id, err := identityOf(res)
	if err != nil {
		return m.failFrom(seq, prev, authError(op, err))
	}

	// Tokens go in before the profile fetch, which authenticates with them.
	if !m.installTokens(seq, res.Tokens) {
		return ErrSuperseded
	}

	sess := m.fetchSession(ctx, id)
	if !m.commit(seq, authenticatedState(sess, id), nil) {
		return ErrSuperseded
	}
	m.log.Info().Str("subject", id.SubjectID).Str("role", string(id.Role)).Bool("degraded", sess.Info().Degraded).Msg("session.login.ok")
	return nil
}

// Register signs up. Success always leaves the machine pending confirmation;
// any credentials held from an earlier session are dropped.
func (m *Machine) Register(ctx context.Context, params RegisterParams) error {
	const op = "Register"

	params.Email = identity.NormalizeEmail(params.Email)
	if err := params.Validate(m.policy); err != nil {
		return m.fail(validationError(op, err))
	}
	if !m.p.IsConfigured() {
		return m.fail(notConfigured(op))
	}

	seq, prev := m.begin(StatusAuthenticating)

	_, err := m.p.SignUp(ctx, provider.SignUpParams{
		Email:      params.Email,
		Password:   params.Password,
		Role:       params.Role,
		Attributes: params.Attributes(),
	})
	if err != nil {
		return m.failFrom(seq, prev, authError(op, err))
	}

	ok := m.commit(seq, pendingState(PendingConfirmation{Email: params.Email, Role: params.Role}), func() {
		if prev.Status == StatusAuthenticated {
			m.creds.Clear()
		}
	})
	if !ok {
		return ErrSuperseded
	}
	m.log.Info().Str("email", params.Email).Str("role", string(params.Role)).Msg("session.register.ok")
	return nil
}

// ConfirmEmail confirms a sign-up. A pending machine becomes anonymous; the
// user still has to log in.
func (m *Machine) ConfirmEmail(ctx context.Context, email, code string) error {
	const op = "ConfirmEmail"

	in := codeInput{Email: identity.NormalizeEmail(email), Code: code}
	if err := in.Validate(); err != nil {
		return m.fail(validationError(op, err))
	}
	if !m.p.IsConfigured() {
		return m.fail(notConfigured(op))
	}

	m.clearErr()
	if err := m.p.ConfirmSignUp(ctx, in.Email, in.Code); err != nil {
		return m.fail(authError(op, err))
	}

	m.mu.Lock()
	pending := m.state.Status == StatusPendingConfirmation
	m.mu.Unlock()

	if pending {
		m.transition(anonymousState())
	}
	m.log.Info().Str("email", in.Email).Msg("session.confirm.ok")
	return nil
}

// ResendCode asks the provider for a new confirmation code.
func (m *Machine) ResendCode(ctx context.Context, email string) error {
	const op = "ResendCode"

	in := emailInput{Email: identity.NormalizeEmail(email)}
	if err := in.Validate(); err != nil {
		return m.fail(validationError(op, err))
	}
	if !m.p.IsConfigured() {
		return m.fail(notConfigured(op))
	}

	m.clearErr()
	if err := m.p.ResendConfirmationCode(ctx, in.Email); err != nil {
		return m.fail(authError(op, err))
	}
	return nil
}

// Logout always ends anonymous with no credentials. The provider sign-out
// is best effort and bounded by Config.LogoutTimeout. It never fails.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.seq++
	m.mu.Unlock()

	if m.p.IsConfigured() {
		m.signOut(ctx)
	}

	m.mu.Lock()
	m.seq++
	m.creds.Clear()
	m.mu.Unlock()

	m.transition(anonymousState())
	m.log.Info().Msg("session.logout")
	return nil
}

func (m *Machine) signOut(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.LogoutTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sign out panicked: %v", r)
			}
		}()
		done <- m.p.SignOut(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			m.log.Warn().Err(err).Msg("session.logout.sign_out_failed")
		}
	case <-ctx.Done():
		m.log.Warn().Dur("timeout", m.cfg.LogoutTimeout).Msg("session.logout.sign_out_timeout")
	}
}

// CheckSession restores a live session from the provider. It never fails:
// without a live session the machine ends anonymous, except that a restored
// pending confirmation is kept. Credentials are only written when a session
// is found.
func (m *Machine) CheckSession(ctx context.Context) State {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	var (
		res *provider.AuthResult
		err error
	)
	if m.p.IsConfigured() {
		rejected := m.creds.AccessToken()
		res, err = m.p.CurrentSession(ctx)
		if errors.Is(err, provider.ErrSessionExpired) && m.refresh != nil && m.refresh.RefreshAfter(ctx, rejected) {
			m.log.Debug().Msg("session.check.refreshed")
			res, err = m.p.CurrentSession(ctx)
		}
	}

	var id identity.Identity
	if err == nil && res != nil {
		id, err = identityOf(*res)
	}

	if err != nil || res == nil {
		if err != nil {
			m.log.Debug().Err(err).Msg("session.check.no_session")
		}
		m.mu.Lock()
		next := anonymousState()
		if m.state.Status == StatusPendingConfirmation && m.state.Pending != nil {
			next = pendingState(*m.state.Pending)
		}
		m.mu.Unlock()
		m.commit(seq, next, nil)
		return m.Snapshot()
	}

	if !m.installTokens(seq, res.Tokens) {
		return m.Snapshot()
	}
	sess := m.fetchSession(ctx, id)
	if m.commit(seq, authenticatedState(sess, id), nil) {
		m.log.Info().Str("subject", id.SubjectID).Str("role", string(id.Role)).Msg("session.check.restored")
	}
	return m.Snapshot()
}

// ResetPassword starts a password reset. The machine state is unchanged.
func (m *Machine) ResetPassword(ctx context.Context, email string) error {
	const op = "ResetPassword"

	in := emailInput{Email: identity.NormalizeEmail(email)}
	if err := in.Validate(); err != nil {
		return validationError(op, err)
	}
	if !m.p.IsConfigured() {
		return notConfigured(op)
	}
	if err := m.p.ForgotPassword(ctx, in.Email); err != nil {
		return authError(op, err)
	}
	return nil
}

// ConfirmResetPassword sets a new password with the emailed code. The
// machine state is unchanged.
func (m *Machine) ConfirmResetPassword(ctx context.Context, email, code, newPassword string) error {
	const op = "ConfirmResetPassword"

	in := resetInput{Email: identity.NormalizeEmail(email), Code: code, NewPassword: newPassword}
	if err := in.validate(m.policy); err != nil {
		return validationError(op, err)
	}
	if !m.p.IsConfigured() {
		return notConfigured(op)
	}
	if err := m.p.ConfirmForgotPassword(ctx, in.Email, in.Code, in.NewPassword); err != nil {
		return authError(op, err)
	}
	return nil
}

func notConfigured(op string) *AuthError {
	return &AuthError{Kind: provider.KindNotConfigured, Op: op, Message: MessageFor(provider.KindNotConfigured), Err: provider.ErrNotConfigured}
}

func identityOf(res provider.AuthResult) (identity.Identity, error) {
	if res.Identity.SubjectID != "" {
		id := res.Identity
		if !id.Role.Valid() {
			id.Role = identity.RoleTenant
		}
		return id, nil
	}
	return identity.DecodeAccessToken(res.Tokens.AccessToken)
}

// fetchSession loads the profile for id. Any failure degrades to the
// minimal session instead of failing the sign-in.
func (m *Machine) fetchSession(ctx context.Context, id identity.Identity) Session {
	if m.profiles == nil {
		return minimalSession(id)
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProfileTimeout)
	defer cancel()

	p, err := m.profiles.GetProfile(pctx, id.Role, id.ProfileKey())
	if err != nil {
		m.log.Warn().Err(err).Str("role", string(id.Role)).Int("status", api.StatusOf(err)).Msg("session.profile.degraded")
		return minimalSession(id)
	}
	return newSession(id, p)
}

// begin marks the start of a provider round trip. It returns the operation's
// sequence number and the stable state to fall back to on failure.
func (m *Machine) begin(status Status) (uint64, State) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	prev := m.state
	prev.Err = nil
	if prev.Status == StatusAuthenticating {
		prev = anonymousState()
	}
	m.state = State{Status: status}
	m.mu.Unlock()

	m.notify(status)
	return seq, prev
}

// commit installs next if no other operation started since seq. effect runs
// under the lock, before the state changes.
func (m *Machine) commit(seq uint64, next State, effect func()) bool {
	m.mu.Lock()
	if m.seq != seq {
		m.mu.Unlock()
		return false
	}
	if effect != nil {
		effect()
	}
	m.state = next
	m.mu.Unlock()

	m.persist()
	m.notify(next.Status)
	return true
}

func (m *Machine) installTokens(seq uint64, t provider.Tokens) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq != seq {
		return false
	}
	if t.AccessToken != "" && t.AccessToken != m.creds.AccessToken() {
		m.creds.Write(t.AccessToken, t.RefreshToken)
	}
	return true
}

// transition installs next unconditionally.
func (m *Machine) transition(next State) {
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()

	m.persist()
	m.notify(next.Status)
}

func (m *Machine) clearErr() {
	m.mu.Lock()
	had := m.state.Err != nil
	m.state.Err = nil
	status := m.state.Status
	m.mu.Unlock()

	if had {
		m.notify(status)
	}
}

// fail overlays err on the current state.
func (m *Machine) fail(err *AuthError) error {
	m.mu.Lock()
	m.state.Err = err
	status := m.state.Status
	m.mu.Unlock()

	m.log.Debug().Str("op", err.Op).Str("kind", string(err.Kind)).Msg("session.op_failed")
	m.notify(status)
	return err
}

// failFrom restores prev with err overlaid, if seq is still current.
func (m *Machine) failFrom(seq uint64, prev State, err *AuthError) error {
	prev.Err = err
	m.log.Debug().Str("op", err.Op).Str("kind", string(err.Kind)).Msg("session.op_failed")
	if !m.commit(seq, prev, nil) {
		return ErrSuperseded
	}
	return err
}

func (m *Machine) notify(status Status) {
	m.metrics.SessionTransition(string(status))
	m.log.Debug().Str("status", string(status)).Msg("session.transition")

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.watchMu.Lock()
	ws := append([]watcher(nil), m.watchers...)
	m.watchMu.Unlock()

	st := m.Snapshot()
	for _, w := range ws {
		w.fn(st)
	}
}

// persist writes the latest stable state. Errors are logged.
func (m *Machine) persist() {
	if m.kv == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	st := m.Snapshot()
	if st.Status == StatusAuthenticating {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if st.Status == StatusAnonymous {
		if err := m.kv.Delete(ctx, m.key); err != nil {
			m.log.Error().Err(err).Str("key", m.key).Msg("session.persist_failed")
		}
		return
	}

	raw, err := encodeRecord(st)
	if err != nil {
		m.log.Error().Err(err).Msg("session.encode_failed")
		return
	}
	if err := m.kv.Save(ctx, m.key, raw); err != nil {
		m.log.Error().Err(err).Str("key", m.key).Msg("session.persist_failed")
	}
}
