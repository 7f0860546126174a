package hypothesis

import "fmt"

// RelevanceMode selects how the relevance factor is computed.
type RelevanceMode string

const (
	// RelevanceBaseline uses the fixed RelevanceBaseline value for every group.
	RelevanceBaseline RelevanceMode = "baseline"
	// RelevanceRetrieval uses the mean retrieval score of the group's
	// retrieved steps, clamped to [0,1].
	RelevanceRetrieval RelevanceMode = "retrieval"
)

// Weights are the factor weights of the confidence score.
type Weights struct {
	FactCoverage float64 `yaml:"fact_coverage"`
	StepProgress float64 `yaml:"step_progress"`
	Frequency    float64 `yaml:"frequency"`
	Relevance    float64 `yaml:"relevance"`
}

// Config controls hypothesis construction.
type Config struct {
	RetrievalTopK       int
	MaxHypotheses       int
	MaxMissingFacts     int
	FrequencySaturation int
	Weights             Weights
	RelevanceBaseline   float64
	RelevanceMode       RelevanceMode
}

// DefaultConfig returns the standard tracker settings.
func DefaultConfig() Config {
	return Config{
		RetrievalTopK:       20,
		MaxHypotheses:       3,
		MaxMissingFacts:     3,
		FrequencySaturation: 5,
		Weights: Weights{
			FactCoverage: 0.5,
			StepProgress: 0.3,
			Frequency:    0.1,
			Relevance:    0.1,
		},
		RelevanceBaseline: 0.5,
		RelevanceMode:     RelevanceBaseline,
	}
}

// Validate checks the configuration for values the tracker cannot use.
func (c Config) Validate() error {
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("retrieval_top_k must be positive, got %d", c.RetrievalTopK)
	}
	if c.MaxHypotheses <= 0 {
		return fmt.Errorf("max_hypotheses must be positive, got %d", c.MaxHypotheses)
	}
	if c.MaxMissingFacts < 0 {
		return fmt.Errorf("max_missing_facts must not be negative, got %d", c.MaxMissingFacts)
	}
	if c.FrequencySaturation <= 0 {
		return fmt.Errorf("frequency_saturation must be positive, got %d", c.FrequencySaturation)
	}
	weights := []struct {
		name  string
		value float64
	}{
		{"fact_coverage", c.Weights.FactCoverage},
		{"step_progress", c.Weights.StepProgress},
		{"frequency", c.Weights.Frequency},
		{"relevance", c.Weights.Relevance},
	}
	for _, w := range weights {
		if w.value < 0 {
			return fmt.Errorf("weight %s must not be negative, got %v", w.name, w.value)
		}
	}
	if c.RelevanceBaseline < 0 || c.RelevanceBaseline > 1 {
		return fmt.Errorf("relevance_baseline must be in [0,1], got %v", c.RelevanceBaseline)
	}
	switch c.RelevanceMode {
	case RelevanceBaseline, RelevanceRetrieval:
	default:
		return fmt.Errorf("unknown relevance_mode %q", c.RelevanceMode)
	}
	return nil
}
