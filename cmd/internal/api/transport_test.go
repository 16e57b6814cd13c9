package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggingTransport_LevelsByStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boom":
			w.WriteHeader(http.StatusBadGateway)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var buf bytes.Buffer
	client := NewHTTPClient(5*time.Second, zerolog.New(&buf).Level(zerolog.InfoLevel))

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	out := buf.String()
	require.NotContains(t, out, `"path":"/ok"`)
	require.Contains(t, out, `"level":"info","method":"GET","path":"/missing","status":404`)
	require.Contains(t, out, `"level":"warn","method":"GET","path":"/boom","status":502`)
}
