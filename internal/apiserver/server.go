// Package apiserver runs the HTTP server that exposes the diagnosis API,
// Prometheus metrics and the MCP endpoint.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/moolen/sleuth/internal/api"
	"github.com/moolen/sleuth/internal/logging"
)

// Options configures the Server.
type Options struct {
	Port      int
	Diagnoser api.Diagnoser

	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// MCPServer is mounted at MCPPath when set.
	MCPServer *server.MCPServer
	MCPPath   string

	Tracer trace.Tracer
}

// Server handles HTTP API requests and implements lifecycle.Component.
type Server struct {
	port     int
	server   *http.Server
	router   *http.ServeMux
	logger   *logging.Logger
	tracer   trace.Tracer
	opts     Options
	mu       sync.Mutex
	listener net.Listener
}

// New creates the server and registers all routes.
func New(opts Options) (*Server, error) {
	if opts.Diagnoser == nil {
		return nil, fmt.Errorf("diagnoser is required")
	}
	if opts.MCPPath == "" {
		opts.MCPPath = "/v1/mcp"
	}

	s := &Server{
		port:   opts.Port,
		router: http.NewServeMux(),
		logger: logging.GetLogger("apiserver"),
		tracer: opts.Tracer,
		opts:   opts,
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer("sleuth.api")
	}

	s.registerHandlers()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Turns may wait on the language model.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.router)
}

// Start implements the lifecycle.Component interface. It binds the port
// before returning so that startup errors are reported to the caller.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()

	s.logger.Info("API server listening on %s", ln.Addr())
	return nil
}

// Stop implements the lifecycle.Component interface
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error: %v", err)
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Name implements the lifecycle.Component interface
func (s *Server) Name() string {
	return "api-server"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = api.WriteJSON(w, map[string]string{"status": "healthy"})
}
