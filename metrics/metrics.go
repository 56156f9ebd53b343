// Package metrics exposes Prometheus-compatible counters for the auction
// driver and the reference party.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
)

const namespace = "mpcauction"

// RecordPartyCall counts one call to a party endpoint and its latency.
// status is "ok", "protocol_error" or "network_error".
func RecordPartyCall(path, status string, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s_party_calls_total{path=%q,status=%q}`, namespace, path, status)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`%s_party_call_duration_seconds{path=%q}`, namespace, path)).UpdateDuration(start)
}

// RecordComparison counts a finished pairwise comparison.
func RecordComparison(strategy string, ok bool, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s_comparisons_total{strategy=%q,ok="%t"}`, namespace, strategy, ok)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`%s_comparison_duration_seconds{strategy=%q}`, namespace, strategy)).UpdateDuration(start)
}

// RecordAuction counts a finished auction by outcome.
func RecordAuction(outcome string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s_auctions_total{outcome=%q}`, namespace, outcome)).Inc()
}

// RecordHandled counts a request served by a reference party.
func RecordHandled(route string, code int) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s_party_requests_total{route=%q,code="%d"}`, namespace, route, code)).Inc()
}

// MetricsServer serves /metrics on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for addr. An empty addr yields a server that
// is never started.
func New(addr string) (*MetricsServer, error) {
	mux := chi.NewRouter()
	mux.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks until the server stops.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
