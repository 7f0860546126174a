package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/moolen/sleuth/internal/config"
	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/embedding"
	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/llm"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/metrics"
	"github.com/moolen/sleuth/internal/session"
	"github.com/moolen/sleuth/internal/tracing"
)

// app holds the components shared by serve, ask and mcp.
type app struct {
	cfg      *config.Config
	store    evidence.Store
	manager  *dialogue.Manager
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tracing  *tracing.Provider
	closers  []func() error
}

// buildApp wires the evidence store, interpreter, session store and
// dialogue manager described by cfg.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logging.GetLogger("app")
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewMetrics(a.registry)

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCAPath,
		TLSInsecure: cfg.Tracing.TLSInsecure,
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing provider: %w", err)
	}
	a.tracing = tp
	a.closers = append(a.closers, func() error { return tp.Stop(context.Background()) })

	policy, err := dialogue.PolicyFromConfig(cfg.Engine)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	embedder, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	store, err := a.openStore(ctx, cfg.Catalog, embedder)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = store
	logger.Info("Catalog loaded with %d steps", store.Len())

	sessions, err := newSessionStore(cfg.Session)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.manager, err = dialogue.NewManager(dialogue.Options{
		Store:       store,
		Sessions:    sessions,
		Interpreter: newInterpreter(cfg.LLM, a.metrics),
		Policy:      policy,
		Metrics:     a.metrics,
		Tracer:      tp.Tracer("sleuth.dialogue"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create dialogue manager: %w", err)
	}
	return a, nil
}

// Close stops the tracing provider and releases the evidence store.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) openStore(ctx context.Context, cfg config.CatalogConfig, embedder embedding.Embedder) (evidence.Store, error) {
	if cfg.Database != "" {
		store, err := evidence.OpenSQLiteStore(ctx, cfg.Database, embedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		if store.Len() == 0 {
			return nil, fmt.Errorf("catalog database %s is empty, run 'sleuth catalog import' first", cfg.Database)
		}
		return store, nil
	}

	catalog, err := evidence.LoadCatalogFile(cfg.Path, cfg.MinVersion)
	if err != nil {
		return nil, err
	}
	return evidence.NewMemoryStore(ctx, catalog.Steps(), embedder)
}

// newEmbedder returns nil for provider "none", which selects lexical search.
func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.EmbeddingHashing:
		return embedding.Checked(embedding.NewHashingEmbedder(cfg.Dimension), cfg.Dimension), nil
	case config.EmbeddingGenAI:
		e, err := embedding.NewGenAIEmbedder(ctx, embedding.GenAIConfig{
			APIKey:     getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
			Model:      cfg.Model,
			TaskType:   cfg.TaskType,
			Dimensions: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return embedding.Checked(e, cfg.Dimension), nil
	default:
		return nil, nil
	}
}

func newInterpreter(cfg config.LLMConfig, m *metrics.Metrics) llm.Interpreter {
	heuristic := llm.NewHeuristicInterpreter()
	if cfg.Provider != config.LLMAnthropic {
		return heuristic
	}
	primary := llm.NewAnthropicInterpreter(llm.AnthropicConfig{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	})
	return llm.WithFallback(primary, heuristic, m.ObserveFallback)
}

func newSessionStore(cfg config.SessionConfig) (session.Store, error) {
	var backing session.Store
	if cfg.Store == config.SessionStoreFile {
		fs, err := session.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		backing = fs
	}
	return session.NewMemoryStore(cfg.MaxSessions, backing)
}
