// Package server provides the SNUTZ HTTP server and shared response helpers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/perquyk/snutz/internal/plugin"
	"github.com/perquyk/snutz/internal/version"
)

// Server is the main SNUTZ coordination server.
type Server struct {
	httpServer *http.Server
	registry   *plugin.Registry
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a new Server instance and mounts all module routes.
func New(addr string, reg *plugin.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		registry: reg,
		logger:   logger,
		mux:      mux,
	}

	s.registerCoreRoutes()
	s.mountModuleRoutes()

	return s
}

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Unmatched API paths get a problem response instead of the mux default.
	s.mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "no such endpoint")
	})
}

// mountModuleRoutes registers all module routes under /api/v1.
// Modules own their full sub-paths, so the mount is flat.
func (s *Server) mountModuleRoutes() {
	for moduleName, routes := range s.registry.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1%s", route.Method, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("module", moduleName),
				zap.String("pattern", pattern),
			)
		}
	}
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Snutz-Version", version.Short())
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "snutz",
		"version": version.Map(),
	})
}
