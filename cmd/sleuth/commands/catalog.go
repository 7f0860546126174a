package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moolen/sleuth/internal/config"
	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/logging"
)

var (
	catalogFile       string
	catalogDatabase   string
	catalogMinVersion string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the diagnostic step catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a YAML catalog file",
	Run:   runCatalogValidate,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a YAML catalog into the SQLite evidence store",
	Long: `Import a YAML catalog into the SQLite evidence store. Steps are embedded
with the configured embedding provider and any previous content is replaced.`,
	Run: runCatalogImport,
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogFile, "file", "", "Catalog YAML file (defaults to catalog.path)")
	catalogCmd.PersistentFlags().StringVar(&catalogMinVersion, "min-version", "", "Minimum catalog version (defaults to catalog.min_version)")
	catalogImportCmd.Flags().StringVar(&catalogDatabase, "db", "", "SQLite database (defaults to catalog.database)")

	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogImportCmd)
}

// catalogConfig reads --config without requiring a complete server
// configuration and applies the catalog flags on top.
func catalogConfig() (*config.Config, error) {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return nil, err
	}
	if err := setupLog(cfg.LogLevel, logLevelFlags); err != nil {
		return nil, err
	}
	switch {
	case catalogFile != "":
		cfg.Catalog.Path = catalogFile
	case catalogPath != "":
		cfg.Catalog.Path = catalogPath
	}
	if catalogDatabase != "" {
		cfg.Catalog.Database = catalogDatabase
	}
	if catalogMinVersion != "" {
		cfg.Catalog.MinVersion = catalogMinVersion
	}
	if cfg.Catalog.Path == "" {
		return nil, config.NewConfigError("a catalog file is required (--file or catalog.path)")
	}
	return cfg, nil
}

func runCatalogValidate(cmd *cobra.Command, args []string) {
	cfg, err := catalogConfig()
	if err != nil {
		HandleError(err, "Configuration error")
	}
	summary, err := validateCatalog(cfg.Catalog)
	if err != nil {
		HandleError(err, "Invalid catalog")
	}
	fmt.Fprintln(os.Stdout, summary)
}

func validateCatalog(cfg config.CatalogConfig) (string, error) {
	catalog, err := evidence.LoadCatalogFile(cfg.Path, cfg.MinVersion)
	if err != nil {
		return "", err
	}
	steps := catalog.Steps()
	rootCauses := make(map[string]struct{})
	for _, s := range steps {
		rootCauses[s.RootCause] = struct{}{}
	}
	return fmt.Sprintf("catalog %s (version %s): %d incidents, %d steps, %d root causes",
		cfg.Path, catalog.Version, len(catalog.Incidents), len(steps), len(rootCauses)), nil
}

func runCatalogImport(cmd *cobra.Command, args []string) {
	cfg, err := catalogConfig()
	if err != nil {
		HandleError(err, "Configuration error")
	}
	if cfg.Catalog.Database == "" {
		HandleError(config.NewConfigError("a database is required (--db or catalog.database)"), "Configuration error")
	}

	n, err := importCatalog(cmd.Context(), cfg)
	if err != nil {
		HandleError(err, "Import failed")
	}
	fmt.Fprintf(os.Stdout, "imported %d steps into %s\n", n, cfg.Catalog.Database)
}

func importCatalog(ctx context.Context, cfg *config.Config) (int, error) {
	logger := logging.GetLogger("catalog")

	catalog, err := evidence.LoadCatalogFile(cfg.Catalog.Path, cfg.Catalog.MinVersion)
	if err != nil {
		return 0, err
	}
	embedder, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return 0, err
	}

	store, err := evidence.OpenSQLiteStore(ctx, cfg.Catalog.Database, embedder)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close %s: %v", cfg.Catalog.Database, err)
		}
	}()

	if previous, err := store.CatalogVersion(ctx); err == nil && previous != "" {
		logger.Info("Replacing catalog version %s with %s", previous, catalog.Version)
	}
	if err := store.Import(ctx, catalog.Version, catalog.Steps()); err != nil {
		return 0, err
	}
	return store.Len(), nil
}
