package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/mcp"
)

var (
	httpAddr        string
	transportType   string
	mcpEndpointPath string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start a standalone MCP server",
	Long: `Start the Model Context Protocol (MCP) server that exposes the diagnosis
dialogue as MCP tools for AI assistants, without the JSON API.

Supports two transport modes:
  - http: HTTP server mode (default, suitable for independent deployment)
  - stdio: Standard input/output mode (for subprocess-based MCP clients)

HTTP mode includes a /health endpoint for health checks.`,
	Run: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&httpAddr, "http-addr", getEnv("MCP_HTTP_ADDR", ":8082"), "HTTP server address (host:port)")
	mcpCmd.Flags().StringVar(&transportType, "transport", "http", "Transport type: http or stdio")
	mcpCmd.Flags().StringVar(&mcpEndpointPath, "mcp-endpoint", getEnv("MCP_ENDPOINT", "/mcp"), "HTTP endpoint path for MCP requests")
}

func runMCP(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		HandleError(err, "Configuration error")
	}
	logger := logging.GetLogger("mcp")
	logger.Info("Starting Sleuth MCP Server (transport: %s)", transportType)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		HandleError(err, "Initialization error")
	}
	defer func() { _ = a.Close() }()

	mcpServer := mcp.NewServer(a.manager, Version).MCPServer()

	switch transportType {
	case "http":
		if err := serveMCPHTTP(ctx, mcpServer, httpAddr, mcpEndpointPath); err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
	case "stdio":
		logger.Info("Starting stdio transport")
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Error("Stdio transport error: %v", err)
		}
	default:
		logger.Fatal("Invalid transport type: %s (must be 'http' or 'stdio')", transportType)
	}

	logger.Info("Server stopped")
}

// serveMCPHTTP serves the streamable HTTP transport until ctx is done.
func serveMCPHTTP(ctx context.Context, mcpServer *server.MCPServer, addr, endpointPath string) error {
	logger := logging.GetLogger("mcp")
	if endpointPath == "" {
		endpointPath = "/mcp"
	} else if endpointPath[0] != '/' {
		endpointPath = "/" + endpointPath
	}

	logger.Info("Starting HTTP server on %s (endpoint: %s)", addr, endpointPath)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	streamableServer := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)
	mux.Handle(endpointPath, streamableServer)

	errCh := make(chan error, 1)
	go func() {
		if err := streamableServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return streamableServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
