package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolen/sleuth/internal/apiserver"
	"github.com/moolen/sleuth/internal/config"
	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/lifecycle"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/mcp"
)

var (
	apiPort         int
	watchConfig     bool
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Sleuth server",
	Long: `Start the Sleuth server which exposes the diagnosis dialogue over a JSON API,
Prometheus metrics on /metrics and the MCP tools on the configured MCP path.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&apiPort, "api-port", 0, "Port the API server listens on (overrides server.port)")
	serveCmd.Flags().BoolVar(&watchConfig, "watch-config", true, "Reload the engine policy when the config file changes")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "Time allowed for graceful shutdown")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		HandleError(err, "Configuration error")
	}
	if apiPort != 0 {
		cfg.Server.Port = apiPort
	}
	logger := logging.GetLogger("server")
	logger.Info("Starting Sleuth v%s", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		HandleError(err, "Initialization error")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close evidence store: %v", err)
		}
	}()

	mcpServer := mcp.NewServer(a.manager, Version)

	apiComponent, err := apiserver.New(apiserver.Options{
		Port:      cfg.Server.Port,
		Diagnoser: a.manager,
		Gatherer:  a.registry,
		MCPServer: mcpServer.MCPServer(),
		MCPPath:   cfg.Server.MCPPath,
		Tracer:    a.tracing.Tracer("sleuth.api"),
	})
	if err != nil {
		HandleError(err, "API server initialization error")
	}

	manager := lifecycle.NewManager()
	manager.SetShutdownTimeout(shutdownTimeout)

	if err := manager.Register(a.tracing); err != nil {
		HandleError(err, "Tracing registration error")
	}
	if err := manager.Register(apiComponent, a.tracing); err != nil {
		HandleError(err, "API server registration error")
	}

	if watchConfig && configPath != "" {
		watcher, err := config.NewPolicyWatcher(config.PolicyWatcherConfig{FilePath: configPath},
			func(c *config.Config) error {
				policy, err := dialogue.PolicyFromConfig(c.Engine)
				if err != nil {
					return err
				}
				return a.manager.SetPolicy(policy)
			})
		if err != nil {
			HandleError(err, "Config watcher initialization error")
		}
		if err := manager.Register(watcher); err != nil {
			HandleError(err, "Config watcher registration error")
		}
		logger.Info("Watching %s for engine policy changes", configPath)
	}

	if err := manager.Run(ctx); err != nil {
		logger.Error("Server stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
