// Package config holds the sleuth configuration file schema, its defaults
// and its validation.
package config

import "fmt"

// Config holds all configuration for the application
type Config struct {
	// LogLevel is the default logging level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Session   SessionConfig   `yaml:"session"`
	Engine    EngineConfig    `yaml:"engine"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Port is the port the API server listens on
	Port int `yaml:"port"`

	// MCPPath is the path the MCP endpoint is mounted on
	MCPPath string `yaml:"mcp_path"`
}

// CatalogConfig locates the diagnostic step catalog.
type CatalogConfig struct {
	// Path is a YAML catalog loaded into memory at startup
	Path string `yaml:"path"`

	// Database is a SQLite evidence store produced by "sleuth catalog import".
	// Takes precedence over Path when set.
	Database string `yaml:"database"`

	// MinVersion rejects catalogs older than this version
	MinVersion string `yaml:"min_version"`
}

// Embedding providers.
const (
	EmbeddingNone    = "none"
	EmbeddingHashing = "hashing"
	EmbeddingGenAI   = "genai"
)

// EmbeddingConfig selects how steps and queries are embedded. With
// provider "none" retrieval falls back to lexical scoring.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	TaskType  string `yaml:"task_type"`
}

// LLM providers.
const (
	LLMNone      = "none"
	LLMAnthropic = "anthropic"
)

// LLMConfig selects the interpreter for operator messages. The keyword
// heuristic is always used as the fallback.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Session stores.
const (
	SessionStoreMemory = "memory"
	SessionStoreFile   = "file"
)

// SessionConfig configures session persistence.
type SessionConfig struct {
	Store string `yaml:"store"`

	// Dir is where the file store writes sessions
	Dir string `yaml:"dir"`

	// MaxSessions bounds the in-memory cache
	MaxSessions int `yaml:"max_sessions"`
}

// Relevance modes.
const (
	RelevanceBaseline  = "baseline"
	RelevanceRetrieval = "retrieval"
)

// WeightsConfig holds the factor weights of the confidence score.
type WeightsConfig struct {
	FactCoverage float64 `yaml:"fact_coverage"`
	StepProgress float64 `yaml:"step_progress"`
	Frequency    float64 `yaml:"frequency"`
	Relevance    float64 `yaml:"relevance"`
}

// DiversityConfig caps how many alternatives share a root cause per phase.
type DiversityConfig struct {
	MidConfirmedThreshold   int     `yaml:"mid_confirmed_threshold"`
	HighConfidenceThreshold float64 `yaml:"high_confidence_threshold"`
	EarlyMaxPerRootCause    int     `yaml:"early_max_per_root_cause"`
	MidMaxPerRootCause      int     `yaml:"mid_max_per_root_cause"`
}

// EngineConfig is the tunable policy of the tracker and the engine. It is
// the part of the file that is hot-reloaded.
type EngineConfig struct {
	RetrievalTopK       int           `yaml:"retrieval_top_k"`
	MaxHypotheses       int           `yaml:"max_hypotheses"`
	MaxMissingFacts     int           `yaml:"max_missing_facts"`
	FrequencySaturation int           `yaml:"frequency_saturation"`
	Weights             WeightsConfig `yaml:"weights"`
	RelevanceBaseline   float64       `yaml:"relevance_baseline"`
	RelevanceMode       string        `yaml:"relevance_mode"`

	ConfirmThreshold      float64         `yaml:"confirm_threshold"`
	DiscriminateThreshold float64         `yaml:"discriminate_threshold"`
	VotingHypotheses      int             `yaml:"voting_hypotheses"`
	MaxAlternatives       int             `yaml:"max_alternatives"`
	Diversity             DiversityConfig `yaml:"diversity"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	TLSCAPath   string `yaml:"tls_ca"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

// Default returns the configuration used for keys absent from the file.
// The engine section matches dialogue.DefaultPolicy.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:    8080,
			MCPPath: "/v1/mcp",
		},
		Embedding: EmbeddingConfig{
			Provider:  EmbeddingNone,
			Dimension: 256,
		},
		LLM: LLMConfig{
			Provider: LLMNone,
		},
		Session: SessionConfig{
			Store:       SessionStoreMemory,
			Dir:         "sessions",
			MaxSessions: 1000,
		},
		Engine: EngineConfig{
			RetrievalTopK:       20,
			MaxHypotheses:       3,
			MaxMissingFacts:     3,
			FrequencySaturation: 5,
			Weights: WeightsConfig{
				FactCoverage: 0.5,
				StepProgress: 0.3,
				Frequency:    0.1,
				Relevance:    0.1,
			},
			RelevanceBaseline:     0.5,
			RelevanceMode:         RelevanceBaseline,
			ConfirmThreshold:      0.85,
			DiscriminateThreshold: 0.5,
			VotingHypotheses:      3,
			MaxAlternatives:       3,
			Diversity: DiversityConfig{
				MidConfirmedThreshold:   2,
				HighConfidenceThreshold: 0.8,
				EarlyMaxPerRootCause:    1,
				MidMaxPerRootCause:      2,
			},
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return NewConfigError("server.port must be between 1 and 65535")
	}

	if c.Catalog.Path == "" && c.Catalog.Database == "" {
		return NewConfigError("one of catalog.path or catalog.database must be set")
	}

	switch c.Embedding.Provider {
	case EmbeddingNone:
	case EmbeddingHashing, EmbeddingGenAI:
		if c.Embedding.Dimension < 1 {
			return NewConfigError("embedding.dimension must be at least 1")
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown embedding.provider %q", c.Embedding.Provider))
	}

	switch c.LLM.Provider {
	case LLMNone, LLMAnthropic:
	default:
		return NewConfigError(fmt.Sprintf("unknown llm.provider %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 0 {
		return NewConfigError("llm.max_tokens must not be negative")
	}

	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreFile:
		if c.Session.Dir == "" {
			return NewConfigError("session.dir must be set for the file store")
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown session.store %q", c.Session.Store))
	}
	if c.Session.MaxSessions < 1 {
		return NewConfigError("session.max_sessions must be at least 1")
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// Validate checks the engine section for values outside their range.
func (e EngineConfig) Validate() error {
	switch e.RelevanceMode {
	case RelevanceBaseline, RelevanceRetrieval:
	default:
		return NewConfigError(fmt.Sprintf("unknown engine.relevance_mode %q", e.RelevanceMode))
	}
	if e.RetrievalTopK < 1 || e.MaxHypotheses < 1 || e.FrequencySaturation < 1 || e.VotingHypotheses < 1 {
		return NewConfigError("engine.retrieval_top_k, max_hypotheses, frequency_saturation and voting_hypotheses must be at least 1")
	}
	if e.MaxMissingFacts < 0 || e.MaxAlternatives < 0 {
		return NewConfigError("engine.max_missing_facts and engine.max_alternatives must not be negative")
	}
	weights := map[string]float64{
		"fact_coverage": e.Weights.FactCoverage,
		"step_progress": e.Weights.StepProgress,
		"frequency":     e.Weights.Frequency,
		"relevance":     e.Weights.Relevance,
	}
	for name, w := range weights {
		if w < 0 {
			return NewConfigError(fmt.Sprintf("engine.weights.%s must not be negative", name))
		}
	}
	if e.RelevanceBaseline < 0 || e.RelevanceBaseline > 1 {
		return NewConfigError("engine.relevance_baseline must be between 0 and 1")
	}
	if e.ConfirmThreshold < 0 || e.ConfirmThreshold > 1 {
		return NewConfigError("engine.confirm_threshold must be between 0 and 1")
	}
	if e.DiscriminateThreshold < 0 || e.DiscriminateThreshold > e.ConfirmThreshold {
		return NewConfigError("engine.discriminate_threshold must be between 0 and engine.confirm_threshold")
	}
	d := e.Diversity
	if d.MidConfirmedThreshold < 0 || d.HighConfidenceThreshold < 0 || d.HighConfidenceThreshold > 1 ||
		d.EarlyMaxPerRootCause < 1 || d.MidMaxPerRootCause < 1 {
		return NewConfigError("engine.diversity has a value out of range")
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
