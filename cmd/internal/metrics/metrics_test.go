package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.APIRequest("GET", 200)
	m.APIRetry()
	m.Refresh("success")
	m.RealtimeReconnect()
	m.RealtimeMessage("in", "ok")
	m.RealtimeState(2)
	m.SessionTransition("anonymous")
	require.Nil(t, m.Registry())
}

func TestCountersExposed(t *testing.T) {
	m := New()
	m.APIRequest("GET", 200)
	m.APIRequest("GET", 204)
	m.APIRequest("POST", 0)
	m.APIRetry()
	m.Refresh("shared")
	m.RealtimeState(2)

	body := scrape(t, m)
	require.Contains(t, body, `affitto_api_requests_total{class="2xx",method="GET"} 2`)
	require.Contains(t, body, `affitto_api_requests_total{class="network",method="POST"} 1`)
	require.Contains(t, body, "affitto_api_retries_total 1")
	require.Contains(t, body, `affitto_refresh_total{result="shared"} 1`)
	require.Contains(t, body, "affitto_realtime_state 2")
}

func TestStatusClass(t *testing.T) {
	require.Equal(t, "network", statusClass(0))
	require.Equal(t, "2xx", statusClass(201))
	require.Equal(t, "4xx", statusClass(401))
	require.Equal(t, "5xx", statusClass(503))
}
