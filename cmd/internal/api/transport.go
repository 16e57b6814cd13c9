package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Doer is the transport the pipeline sends through. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LoggingTransport logs every round trip: method, path, status, duration.
// 5xx and transport errors log at warn, 4xx at info, the rest at debug.
type LoggingTransport struct {
	Base http.RoundTripper
	Log  zerolog.Logger
}

func (t *LoggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(r)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		t.Log.Warn().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int64("duration_ms", elapsed).
			Msg("http.client.error")
		return nil, err
	}

	var ev *zerolog.Event
	switch {
	case resp.StatusCode >= 500:
		ev = t.Log.Warn()
	case resp.StatusCode >= 400:
		ev = t.Log.Info()
	default:
		ev = t.Log.Debug()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", resp.StatusCode).
		Int64("duration_ms", elapsed).
		Str("request_id", r.Header.Get("X-Request-ID")).
		Msg("http.client.request")
	return resp, nil
}

// NewHTTPClient returns a client with the logging transport installed.
func NewHTTPClient(timeout time.Duration, log zerolog.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &LoggingTransport{Base: http.DefaultTransport, Log: log},
	}
}
