package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"affittochiaro/cmd/identity/ids"
	"affittochiaro/cmd/internal/auth/credentials"
	"affittochiaro/cmd/internal/metrics"
	"affittochiaro/cmd/security/token"
)

const defaultMaxBody = 8 << 20

// Refresher is the refresh coordinator as seen by the pipeline.
type Refresher interface {
	RefreshAfter(ctx context.Context, failed string) bool
}

// Navigator receives the forced-logout side effect.
type Navigator interface {
	RedirectToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) RedirectToLogin() { f() }

type Pipeline struct {
	base      *url.URL
	doer      Doer
	store     *credentials.Store
	refresher Refresher
	nav       Navigator
	log       zerolog.Logger
	metrics   *metrics.Metrics
	maxBody   int64
}

type Option func(*Pipeline)

func WithDoer(d Doer) Option {
	return func(p *Pipeline) {
		if d != nil {
			p.doer = d
		}
	}
}

func WithNavigator(n Navigator) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.nav = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithMaxBody caps how many response bytes are read (default 8 MiB).
func WithMaxBody(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBody = n
		}
	}
}

func New(baseURL string, store *credentials.Store, refresher Refresher, opts ...Option) (*Pipeline, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: invalid base url %q", baseURL)
	}
	if store == nil || refresher == nil {
		return nil, fmt.Errorf("api: credential store and refresher are required")
	}

	p := &Pipeline{
		base:      u,
		doer:      &http.Client{Timeout: 30 * time.Second},
		store:     store,
		refresher: refresher,
		nav:       NavigatorFunc(func() {}),
		log:       zerolog.Nop(),
		maxBody:   defaultMaxBody,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *Pipeline) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return p.Do(ctx, http.MethodGet, path, nil)
}

func (p *Pipeline) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return p.Do(ctx, http.MethodPost, path, body)
}

func (p *Pipeline) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return p.Do(ctx, http.MethodPut, path, body)
}

func (p *Pipeline) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return p.Do(ctx, http.MethodPatch, path, body)
}

func (p *Pipeline) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return p.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends one logical call and returns the unwrapped payload: the "data"
// member of an envelope body, the body itself otherwise, nil when empty.
//
// The call is resent at most once, after a successful refresh triggered by
// its first 401.
func (p *Pipeline) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: encode body: %w", err)
		}
		payload = b
	}

	retried := false
	for {
		access := p.store.AccessToken()

		status, raw, err := p.send(ctx, method, path, payload, access)
		if err != nil {
			p.metrics.APIRequest(method, 0)
			return nil, &APIError{Message: msgNetwork, Err: err}
		}
		p.metrics.APIRequest(method, status)

		if status == http.StatusUnauthorized && !retried {
			retried = true
			if p.refresher.RefreshAfter(ctx, access) {
				p.metrics.APIRetry()
				p.log.Debug().Str("method", method).Str("path", path).Msg("api.retry_after_refresh")
				continue
			}
			if err := ctx.Err(); err != nil {
				// The caller gave up while the refresh was running; that is
				// not a denial, so the session stays.
				return nil, &APIError{Message: msgNetwork, Err: err}
			}

			p.log.Warn().
				Str("method", method).
				Str("path", path).
				Str("access_fp", token.Fingerprint(access)).
				Msg("api.session_expired")
			p.store.Clear()
			p.nav.RedirectToLogin()
			return nil, &APIError{
				Message:    MessageFor(http.StatusUnauthorized),
				StatusCode: http.StatusUnauthorized,
				RawBody:    raw,
				Err:        ErrSessionExpired,
			}
		}

		if status >= 200 && status <= 299 {
			return unwrap(raw), nil
		}
		return nil, newStatusError(status, raw)
	}
}

func (p *Pipeline) send(ctx context.Context, method, path string, payload []byte, access string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	target, err := p.resolve(path)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", ids.New(time.Now()))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := p.doer.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func (p *Pipeline) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	u := *p.base
	u.Path = strings.TrimRight(p.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = strings.TrimRight(p.base.EscapedPath(), "/") + "/" + strings.TrimLeft(ref.EscapedPath(), "/")
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

func unwrap(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &env); err == nil {
			if data, ok := env["data"]; ok {
				return data
			}
		}
	}
	return json.RawMessage(trimmed)
}

// Decode unmarshals a pipeline result into T.
//
//	listing, err := api.Decode[Listing](p.Get(ctx, "/listings/42"))
func Decode[T any](raw json.RawMessage, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("api: decode %T: %w", out, err)
	}
	return out, nil
}
