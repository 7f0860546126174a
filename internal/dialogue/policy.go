package dialogue

import (
	"fmt"

	"github.com/moolen/sleuth/internal/config"
	"github.com/moolen/sleuth/internal/hypothesis"
	"github.com/moolen/sleuth/internal/recommend"
)

// EnginePolicy bundles the tunables of the tracker and the engine. It can
// be replaced at runtime with Manager.SetPolicy.
type EnginePolicy struct {
	Tracker hypothesis.Config
	Engine  recommend.Config
}

// DefaultPolicy returns the default tracker and engine settings.
func DefaultPolicy() EnginePolicy {
	return EnginePolicy{
		Tracker: hypothesis.DefaultConfig(),
		Engine:  recommend.DefaultConfig(),
	}
}

// Validate checks both halves of the policy.
func (p EnginePolicy) Validate() error {
	if err := p.Tracker.Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	if err := p.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// PolicyFromConfig converts the engine section of the configuration file
// and validates the result.
func PolicyFromConfig(e config.EngineConfig) (EnginePolicy, error) {
	p := EnginePolicy{
		Tracker: hypothesis.Config{
			RetrievalTopK:       e.RetrievalTopK,
			MaxHypotheses:       e.MaxHypotheses,
			MaxMissingFacts:     e.MaxMissingFacts,
			FrequencySaturation: e.FrequencySaturation,
			Weights: hypothesis.Weights{
				FactCoverage: e.Weights.FactCoverage,
				StepProgress: e.Weights.StepProgress,
				Frequency:    e.Weights.Frequency,
				Relevance:    e.Weights.Relevance,
			},
			RelevanceBaseline: e.RelevanceBaseline,
			RelevanceMode:     hypothesis.RelevanceMode(e.RelevanceMode),
		},
		Engine: recommend.Config{
			ConfirmThreshold:      e.ConfirmThreshold,
			DiscriminateThreshold: e.DiscriminateThreshold,
			VotingHypotheses:      e.VotingHypotheses,
			MaxAlternatives:       e.MaxAlternatives,
			Diversity: recommend.DiversityConfig{
				MidConfirmedThreshold:   e.Diversity.MidConfirmedThreshold,
				HighConfidenceThreshold: e.Diversity.HighConfidenceThreshold,
				EarlyMaxPerRootCause:    e.Diversity.EarlyMaxPerRootCause,
				MidMaxPerRootCause:      e.Diversity.MidMaxPerRootCause,
			},
		},
	}
	if err := p.Validate(); err != nil {
		return EnginePolicy{}, config.NewConfigError("engine: " + err.Error())
	}
	return p, nil
}
