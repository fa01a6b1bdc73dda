// Package http serves usage predictions over HTTP and websockets.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server runs the prediction API.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig configures the listener. Timeout bounds reading a request and writing its response.
type ServerConfig struct {
	Port         int
	Timeout      time.Duration
	MaxBodyBytes int64
}

// DefaultServerConfig listens on :8000 with a 30s timeout and a 1 MiB body limit.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:         8000,
		Timeout:      30 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// NewServer wires handlers behind the middleware chain. Explanations are cut
// off at explainBudget(config.Timeout) so they finish inside the write timeout.
func NewServer(config ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers.explainTimeout = explainBudget(config.Timeout)
	mux := http.NewServeMux()
	handlers.RegisterHandlers(mux)

	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		RequestSizeMiddleware(config.MaxBodyBytes),
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks until the server is stopped.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", fmt.Sprintf("ws://localhost%s/api/ws/predict", s.server.Addr)),
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// explainBudget leaves a quarter of the write timeout, at most 5s, for the
// prediction and the response itself.
func explainBudget(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	return writeTimeout - min(writeTimeout/4, 5*time.Second)
}
