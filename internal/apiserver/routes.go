package apiserver

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moolen/sleuth/internal/api"
)

// registerHandlers registers all HTTP handlers
func (s *Server) registerHandlers() {
	api.NewHandler(s.opts.Diagnoser, s.tracer).Register(s.router)

	s.router.HandleFunc("GET /health", s.handleHealth)

	if s.opts.Gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.registerMCPHandler()

	s.router.HandleFunc("/", s.handleNotFound)
}

// registerMCPHandler mounts the streamable HTTP transport of the MCP server.
func (s *Server) registerMCPHandler() {
	if s.opts.MCPServer == nil {
		s.logger.Debug("MCP server not configured, skipping %s endpoint", s.opts.MCPPath)
		return
	}

	streamable := server.NewStreamableHTTPServer(
		s.opts.MCPServer,
		server.WithEndpointPath(s.opts.MCPPath),
		server.WithStateLess(true),
	)
	s.router.Handle(s.opts.MCPPath, streamable)
	s.logger.Info("MCP endpoint registered at %s", s.opts.MCPPath)
}
