// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/handlers"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds the wait for in-flight requests on Stop
const shutdownTimeout = 30 * time.Second

// Engine is the reconciliation engine as seen by the API. Policy writes
// and state reads are serialized through it.
type Engine interface {
	policy.Manager
	handlers.StateReader
}

// Server represents the HTTP API server that exposes the policy tables,
// the live interface and client state, and backend statistics.
type Server struct {
	config     *Config
	dataPlane  dataplane.DataPlaneInterface
	engine     Engine
	httpServer *http.Server
	router     *gin.Engine
	listener   net.Listener

	settingsMu sync.Mutex
	settings   models.ConfigResponse
}

// NewAPIServer creates and initializes a new API server instance.
// It sets up the Gin router, configures middleware, and registers all routes.
//
// Parameters:
//   - cfg: API server configuration (nil uses defaults)
//   - dp: backend statistics source
//   - engine: policy manager and state reader
func NewAPIServer(cfg *Config, dp dataplane.DataPlaneInterface, engine Engine) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dp == nil || engine == nil {
		return nil, errors.New("api: data plane and engine are required")
	}

	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:    cfg,
		dataPlane: dp,
		engine:    engine,
		router:    gin.New(),
	}
	if cfg.Settings != nil {
		server.settings = *cfg.Settings
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

// Start binds the listener and serves in a background goroutine.
// Bind errors are returned; serve errors after that are logged.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Infof("Starting API server on %s", ln.Addr())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("API server failed: %v", err)
		}
	}()

	return nil
}

// Run starts the server and stops it once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop gracefully shuts down the HTTP server.
// It waits for in-flight requests to complete (up to 30 seconds).
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	log.Info("Shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("API server forced to shutdown: %v", err)
		return err
	}

	log.Info("API server stopped gracefully")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GetRouter returns the underlying Gin router instance.
// This is primarily useful for testing purposes to inject
// test HTTP requests without starting the full HTTP server.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
