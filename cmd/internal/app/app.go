// Package app wires the Affittochiaro session agent: config, logging,
// storage, the auth and API clients, the session machine, the realtime
// connection and the optional metrics listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"affittochiaro/cmd/internal/api"
	"affittochiaro/cmd/internal/auth/credentials"
	"affittochiaro/cmd/internal/auth/provider"
	"affittochiaro/cmd/internal/auth/refresh"
	"affittochiaro/cmd/internal/auth/session"
	"affittochiaro/cmd/internal/metrics"
	"affittochiaro/cmd/internal/realtime"
	"affittochiaro/cmd/security/password"
)

// App owns every long-lived component of the agent.
type App struct {
	cfg Config
	log zerolog.Logger

	metrics *metrics.Metrics
	store   Store

	creds    *credentials.Store
	provider provider.AuthProvider
	refresh  *refresh.Coordinator
	api      *api.Pipeline
	session  *session.Machine
	realtime *realtime.Connection

	stops []func()
}

// New builds the App. On error every resource opened so far is released.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*App, error) {
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	st, err := newStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	a.store = st

	if err := a.wire(ctx); err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg
	httpClient := api.NewHTTPClient(cfg.HTTPTimeout, a.log)

	a.creds = credentials.Open(ctx, a.store.KV(),
		credentials.WithLogger(a.log),
		credentials.WithNamespace(cfg.Namespace),
	)

	p, err := newProvider(ctx, cfg, a.creds, httpClient, a.log)
	if err != nil {
		return err
	}
	a.provider = p

	a.refresh = refresh.New(a.creds, p,
		refresh.WithLogger(a.log),
		refresh.WithMetrics(a.metrics),
	)

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	sessCfg.Namespace = cfg.Namespace

	policy, err := password.PolicyFromEnv()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	sessOpts := []session.Option{
		session.WithStorage(a.store.KV()),
		session.WithConfig(sessCfg),
		session.WithLogger(a.log),
		session.WithMetrics(a.metrics),
		session.WithPasswordPolicy(policy),
		session.WithRefresher(a.refresh),
	}

	if cfg.APIBaseURL != "" {
		a.api, err = api.New(cfg.APIBaseURL, a.creds, a.refresh,
			api.WithDoer(httpClient),
			api.WithNavigator(api.NavigatorFunc(a.forcedLogout)),
			api.WithLogger(a.log),
			api.WithMetrics(a.metrics),
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		sessOpts = append(sessOpts, session.WithProfiles(api.NewProfileService(a.api)))
	}

	a.session = session.New(ctx, p, a.creds, sessOpts...)

	if cfg.RealtimeURL != "" {
		a.realtime, err = realtime.New(cfg.RealtimeURL, a.creds,
			// The websocket dialer bounds the handshake with its context and
			// refuses clients that carry a Timeout.
			realtime.WithDialer(&realtime.WSDialer{HTTPClient: &http.Client{Transport: httpClient.Transport}}),
			realtime.WithReconnect(cfg.Realtime.ReconnectInterval, cfg.Realtime.MaxAttempts),
			realtime.WithLogger(a.log),
			realtime.WithMetrics(a.metrics),
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}

		if cfg.Realtime.TokenPolicy == PolicyReconnect {
			a.stops = append(a.stops, a.refresh.OnRefreshed(a.realtime.OnTokenRefreshed))
		}
		a.stops = append(a.stops, a.session.Watch(a.followSession))
	}

	a.log.Debug().
		Str("namespace", cfg.Namespace).
		Str("storage", cfg.Storage.Backend).
		Str("auth_provider", cfg.AuthProvider).
		Bool("configured", p.IsConfigured()).
		Bool("api", a.api != nil).
		Bool("realtime", a.realtime != nil).
		Str("token_policy", cfg.Realtime.TokenPolicy).
		Msg("app.wired")
	return nil
}

func newProvider(ctx context.Context, cfg Config, creds *credentials.Store, client *http.Client, log zerolog.Logger) (provider.AuthProvider, error) {
	switch cfg.AuthProvider {
	case ProviderHTTP:
		if cfg.AuthBaseURL == "" {
			log.Warn().Msg("auth.unconfigured")
			return provider.Unconfigured{}, nil
		}
		return provider.NewHTTPProvider(cfg.AuthBaseURL, creds,
			provider.WithHTTPClient(client),
			provider.WithHTTPLogger(log),
		)

	case ProviderOAuth2:
		return provider.NewOAuth2Provider(&oauth2.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth2.TokenURL},
			Scopes:       cfg.OAuth2.Scopes,
		}, creds,
			provider.WithOAuth2HTTPClient(client),
			provider.WithOAuth2Logger(log),
		)

	case ProviderOIDC:
		// Discovery goes through the same logged client.
		return provider.DiscoverOIDC(oidc.ClientContext(ctx, client), cfg.OAuth2.Issuer, cfg.OAuth2.ClientID, cfg.OAuth2.ClientSecret, creds,
			provider.WithOAuth2HTTPClient(client),
			provider.WithOAuth2Logger(log),
		)

	case ProviderNone:
		return provider.Unconfigured{}, nil
	}
	return nil, fmt.Errorf("%w: auth provider %q", ErrConfig, cfg.AuthProvider)
}

// forcedLogout runs when the API pipeline gives up on a 401. Credentials
// are already cleared; the session re-checks and realtime is dropped.
func (a *App) forcedLogout() {
	a.log.Warn().Msg("app.forced_logout")
	if a.realtime != nil {
		a.realtime.Disconnect()
	}
	if a.session != nil {
		go a.session.CheckSession(context.Background())
	}
}

// followSession drops the realtime socket once the user is signed out.
func (a *App) followSession(st session.State) {
	if st.Status == session.StatusAnonymous && a.realtime.State() != realtime.StateIdle {
		a.realtime.Disconnect()
	}
}

func (a *App) Config() Config { return a.cfg }

func (a *App) Logger() zerolog.Logger { return a.log }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

func (a *App) Credentials() *credentials.Store { return a.creds }

func (a *App) Session() *session.Machine { return a.session }

// API returns the REST pipeline, or ErrUnavailable without an API URL.
func (a *App) API() (*api.Pipeline, error) {
	if a.api == nil {
		return nil, fmt.Errorf("%w: api url (AFFITTO_API_URL)", ErrUnavailable)
	}
	return a.api, nil
}

// Realtime returns the realtime connection, or ErrUnavailable without a
// realtime URL.
func (a *App) Realtime() (*realtime.Connection, error) {
	if a.realtime == nil {
		return nil, fmt.Errorf("%w: realtime url (AFFITTO_REALTIME_URL)", ErrUnavailable)
	}
	return a.realtime, nil
}

// Ready reports whether the storage backend is reachable.
func (a *App) Ready(ctx context.Context) error {
	return a.store.Ready(ctx)
}

// Close tears down realtime and releases the storage backend.
func (a *App) Close(ctx context.Context) error {
	for _, stop := range a.stops {
		stop()
	}
	a.stops = nil

	var errs []error
	if a.realtime != nil {
		errs = append(errs, a.realtime.Close())
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.log.Error().Err(err).Msg("store.close.fail")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
