package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moolen/sleuth/internal/config"
	"github.com/moolen/sleuth/internal/logging"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string
	catalogPath   string
)

var rootCmd = &cobra.Command{
	Use:   "sleuth",
	Short: "Sleuth - guided diagnosis of production problems",
	Long: `Sleuth walks an operator through the diagnosis of a production problem.
It keeps several root-cause hypotheses alive, recommends the next check from
a catalog of past incidents and confirms a root cause once the evidence is strong enough.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Supports per-package log levels: --log-level debug --log-level dialogue=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level", nil,
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level llm.anthropic=debug --log-level apiserver=warn")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnv("SLEUTH_CONFIG", ""),
		"Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "",
		"Catalog YAML file (overrides catalog.path and catalog.database)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(mcpCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, applies --catalog and validates the result,
// then sets up logging with the file's log_level as the default and the
// CLI flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return nil, err
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
		cfg.Catalog.Database = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := setupLog(cfg.LogLevel, logLevelFlags); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLog initializes the logging system.
// Priority: CLI flags > Environment variables > config file
func setupLog(fileLevel string, flags []string) error {
	if fileLevel != "" {
		flags = append([]string{fileLevel}, flags...)
	}
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses CLI flags and environment variables
// Priority: CLI flags > Environment variables
//
// CLI format: ["debug"], ["default=info", "llm.anthropic=debug"], or ["info"]
// Env vars: LOG_LEVEL_LLM_ANTHROPIC=debug (package name uppercased, dots to underscores)
//
// Returns: (defaultLevel, packageLevels map, error)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if strings.HasPrefix(envPair, "LOG_LEVEL_") {
			parts := strings.SplitN(envPair, "=", 2)
			if len(parts) != 2 {
				continue
			}
			result[convertEnvKeyToPackageName(parts[0])] = parts[1]
		}
	}

	for _, flag := range flags {
		if !strings.Contains(flag, "=") {
			result["default"] = flag
			continue
		}
		parts := strings.SplitN(flag, "=", 2)
		result[parts[0]] = parts[1]
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_LLM_ANTHROPIC -> llm.anthropic
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

// validateLogLevel checks if a level string is valid
func validateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
