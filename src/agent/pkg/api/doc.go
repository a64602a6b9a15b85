// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package api provides the RESTful HTTP control surface of the rate
// limiter daemon.
//
// Every policy write and state read goes through the reconciliation
// engine, so requests never race the reconcile pass.
//
// # Example Usage
//
//	cfg := api.DefaultConfig()
//	cfg.Gatherer = prometheus.DefaultGatherer
//
//	server, err := api.NewAPIServer(cfg, dataPlane, engine)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	return server.Run(ctx)
//
// # Endpoints
//
// Health check:
//   - GET /api/v1/health  - Simple health check
//   - GET /api/v1/status  - Engine state, purge state and statistics
//
// Policy tables (a name of "*" addresses the wildcard entry):
//   - GET    /api/v1/policies/interfaces       - List interface policies
//   - PUT    /api/v1/policies/interfaces       - Set an interface policy
//   - GET    /api/v1/policies/interfaces/:name - Resolve an interface policy
//   - GET    /api/v1/policies/clients          - List client policies
//   - PUT    /api/v1/policies/clients          - Set a client policy
//   - GET    /api/v1/policies/clients/:name    - Resolve a client policy
//   - DELETE /api/v1/policies                  - Purge all policies
//   - POST   /api/v1/purge                     - Purge all policies
//
// Live state:
//   - GET /api/v1/interfaces - Tracked wireless interfaces
//   - GET /api/v1/clients    - Tracked clients, optionally ?interface=
//
// Other:
//   - GET /api/v1/stats  - Backend command counters
//   - GET /api/v1/config - Effective configuration
//   - PUT /api/v1/config - Change the log level
//   - GET /metrics       - Prometheus metrics
//
// # Middleware
//
// The server includes the following middleware:
//   - Recovery: Catches panics and prevents server crashes
//   - Logger: Logs all HTTP requests with timing information
//   - CORS: Enables cross-origin resource sharing for web UIs
package api
