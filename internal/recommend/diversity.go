package recommend

import (
	"fmt"

	"github.com/moolen/sleuth/internal/models"
)

// Phase is the stage of a diagnosis, used to relax the diversity cap as
// evidence accumulates.
type Phase string

const (
	PhaseEarly Phase = "early"
	PhaseMid   Phase = "mid"
	PhaseLate  Phase = "late"
)

// DiversityConfig bounds how many recommended steps may share a root cause.
type DiversityConfig struct {
	// MidConfirmedThreshold is the confirmed-fact count at which the mid
	// phase starts.
	MidConfirmedThreshold int
	// HighConfidenceThreshold is the top confidence at which the late
	// phase starts and the cap is lifted.
	HighConfidenceThreshold float64
	EarlyMaxPerRootCause    int
	MidMaxPerRootCause      int
}

// DefaultDiversityConfig returns the standard phase thresholds and caps.
func DefaultDiversityConfig() DiversityConfig {
	return DiversityConfig{
		MidConfirmedThreshold:   2,
		HighConfidenceThreshold: 0.8,
		EarlyMaxPerRootCause:    1,
		MidMaxPerRootCause:      2,
	}
}

// Validate checks that thresholds and caps are usable.
func (c DiversityConfig) Validate() error {
	if c.MidConfirmedThreshold < 0 {
		return fmt.Errorf("mid_confirmed_threshold must not be negative, got %d", c.MidConfirmedThreshold)
	}
	if c.HighConfidenceThreshold < 0 || c.HighConfidenceThreshold > 1 {
		return fmt.Errorf("high_confidence_threshold must be in [0,1], got %v", c.HighConfidenceThreshold)
	}
	if c.EarlyMaxPerRootCause <= 0 || c.MidMaxPerRootCause <= 0 {
		return fmt.Errorf("per-root-cause caps must be positive, got early=%d mid=%d",
			c.EarlyMaxPerRootCause, c.MidMaxPerRootCause)
	}
	return nil
}

// PhaseFor derives the phase of a session: late once the top hypothesis
// reaches the high-confidence threshold, otherwise mid once enough facts
// are confirmed, otherwise early.
func (c DiversityConfig) PhaseFor(s models.SessionState) Phase {
	if top, ok := s.TopHypothesis(); ok && top.Confidence >= c.HighConfidenceThreshold {
		return PhaseLate
	}
	if len(s.ConfirmedFacts) >= c.MidConfirmedThreshold {
		return PhaseMid
	}
	return PhaseEarly
}

// MaxPerRootCause returns the cap for a phase; 0 means unlimited.
func (c DiversityConfig) MaxPerRootCause(p Phase) int {
	switch p {
	case PhaseEarly:
		return c.EarlyMaxPerRootCause
	case PhaseMid:
		return c.MidMaxPerRootCause
	default:
		return 0
	}
}

// Candidate is a step competing for recommendation.
type Candidate struct {
	Step models.DiagnosticStep
	// RootCause is the hypothesis the candidate is associated with. Empty
	// means none, and such candidates are never filtered.
	RootCause string
	Score     float64
}

// ApplyDiversity walks candidates in order and keeps each one unless its
// root cause already reached the phase cap. At most limit candidates are
// returned; limit <= 0 means no limit.
func ApplyDiversity(candidates []Candidate, phase Phase, cfg DiversityConfig, limit int) []Candidate {
	maxPer := cfg.MaxPerRootCause(phase)
	out := make([]Candidate, 0, len(candidates))
	counts := make(map[string]int)

	for _, c := range candidates {
		if limit > 0 && len(out) >= limit {
			break
		}
		if maxPer > 0 && c.RootCause != "" {
			if counts[c.RootCause] >= maxPer {
				continue
			}
			counts[c.RootCause]++
		}
		out = append(out, c)
	}
	return out
}
