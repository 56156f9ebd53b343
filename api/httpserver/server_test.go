package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthAndDrain(t *testing.T) {
	srv, err := New(&HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, pingRoutes{})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/ping")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "pong", body)

	code, _ = get(t, ts.URL+"/livez")
	require.Equal(t, http.StatusOK, code)
	code, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusOK, code)

	_, body = get(t, ts.URL+"/drain")
	require.Contains(t, body, `"draining"`)
	_, body = get(t, ts.URL+"/drain")
	require.Contains(t, body, "already draining")

	code, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, ts.URL+"/livez")
	require.Equal(t, http.StatusOK, code)

	_, body = get(t, ts.URL+"/undrain")
	require.Contains(t, body, `"ready"`)
	code, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusOK, code)
}

func TestCORS(t *testing.T) {
	srv, err := New(&HTTPServerConfig{
		CORSOrigins: []string{"https://auction.example"},
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, pingRoutes{})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/ping", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://auction.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "https://auction.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://other.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestShutdownDrainsFirst(t *testing.T) {
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		DrainDuration:            50 * time.Millisecond,
		GracefulShutdownDuration: time.Second,
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/readyz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)
	<-done
}
