package recommend

import "fmt"

// Config controls the decision policy of the engine.
type Config struct {
	// ConfirmThreshold: a top confidence strictly above it confirms the root cause.
	ConfirmThreshold float64
	// DiscriminateThreshold: a top confidence strictly above it looks for a
	// step that separates the top two hypotheses.
	DiscriminateThreshold float64
	// VotingHypotheses is how many hypotheses take part in weighted voting.
	VotingHypotheses int
	// MaxAlternatives bounds RecommendStep.Alternatives.
	MaxAlternatives int
	Diversity       DiversityConfig
}

// DefaultConfig returns the standard decision policy.
func DefaultConfig() Config {
	return Config{
		ConfirmThreshold:      0.85,
		DiscriminateThreshold: 0.5,
		VotingHypotheses:      3,
		MaxAlternatives:       3,
		Diversity:             DefaultDiversityConfig(),
	}
}

// Validate checks the policy for values the engine cannot use.
func (c Config) Validate() error {
	if c.ConfirmThreshold < 0 || c.ConfirmThreshold > 1 {
		return fmt.Errorf("confirm_threshold must be in [0,1], got %v", c.ConfirmThreshold)
	}
	if c.DiscriminateThreshold < 0 || c.DiscriminateThreshold > c.ConfirmThreshold {
		return fmt.Errorf("discriminate_threshold must be in [0, confirm_threshold], got %v", c.DiscriminateThreshold)
	}
	if c.VotingHypotheses <= 0 {
		return fmt.Errorf("voting_hypotheses must be positive, got %d", c.VotingHypotheses)
	}
	if c.MaxAlternatives < 0 {
		return fmt.Errorf("max_alternatives must not be negative, got %d", c.MaxAlternatives)
	}
	return c.Diversity.Validate()
}
