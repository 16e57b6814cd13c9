package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  zerolog.Level
		wantResult string
		wantClass  string
	}{
		{status: 200, wantLevel: zerolog.InfoLevel, wantResult: "success", wantClass: "2xx"},
		{status: 302, wantLevel: zerolog.InfoLevel, wantResult: "redirect", wantClass: "3xx"},
		{status: 404, wantLevel: zerolog.WarnLevel, wantResult: "client_error", wantClass: "4xx"},
		{status: 503, wantLevel: zerolog.ErrorLevel, wantResult: "server_error", wantClass: "5xx"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q; want level=%v result=%q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
		if got := statusClass(tc.status); got != tc.wantClass {
			t.Fatalf("statusClass(%d)=%q want=%q", tc.status, got, tc.wantClass)
		}
	}
}

func TestWithRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), log)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var ev map[string]any
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if ev["message"] != "http.request" || ev["level"] != "warn" || ev["path"] != "/healthz" {
		t.Fatalf("unexpected log event: %v", ev)
	}
	if ev["status"] != float64(http.StatusTeapot) || ev["bytes"] != float64(len("short and stout")) {
		t.Fatalf("unexpected status/bytes: %v", ev)
	}
}

func TestLoggingResponseWriter_Flush(t *testing.T) {
	rr := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rr, status: http.StatusOK}

	lrw.Flush()
	if !rr.Flushed {
		t.Fatalf("flush not forwarded")
	}
	if lrw.Unwrap() != rr {
		t.Fatalf("unwrap mismatch")
	}
}
