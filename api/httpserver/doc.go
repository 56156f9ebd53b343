// Package httpserver provides the base HTTP server that party daemons run on.
//
// BaseServer wires the standard middleware (request IDs, panic recovery,
// optional CORS and structured request logging) and adds the operational
// endpoints every daemon exposes:
//
//   - /livez: the process is running
//   - /readyz: the server accepts requests, 503 while draining
//   - /drain and /undrain: toggle readiness ahead of a shutdown
//
// Components register their own routes through RouteRegistrar. Metrics are
// served from a separate listener when MetricsAddr is set.
//
//	handler := server.NewHandler(&server.HandlerConfig{Party: party, Token: token})
//	srv, err := httpserver.New(cfg, handler)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
