package hypothesis

import (
	"strings"

	"github.com/moolen/sleuth/internal/models"
)

// score combines the factors with the configured weights, capped to [0,1].
func score(f models.ConfidenceFactors, w Weights) float64 {
	s := f.FactCoverage*w.FactCoverage +
		f.StepProgress*w.StepProgress +
		f.Frequency*w.Frequency +
		f.Relevance*w.Relevance
	return clamp01(s)
}

// FactMatches reports whether an observed fact and a confirmed fact overlap:
// case-insensitive substring containment in either direction. Blank text
// never matches.
func FactMatches(observed, confirmed string) bool {
	o := strings.ToLower(strings.TrimSpace(observed))
	c := strings.ToLower(strings.TrimSpace(confirmed))
	if o == "" || c == "" {
		return false
	}
	return strings.Contains(o, c) || strings.Contains(c, o)
}

func matchesAny(observed string, facts []string) bool {
	for _, f := range facts {
		if FactMatches(observed, f) {
			return true
		}
	}
	return false
}

// factCoverageFactor: fraction of steps whose observed fact matches a confirmed fact
func factCoverageFactor(steps []models.DiagnosticStep, facts []string) float64 {
	if len(steps) == 0 {
		return 0
	}
	covered := 0
	for _, s := range steps {
		if matchesAny(s.ObservedFact, facts) {
			covered++
		}
	}
	return float64(covered) / float64(len(steps))
}

// stepProgressFactor: fraction of steps already executed
func stepProgressFactor(steps []models.DiagnosticStep, executed map[string]bool) float64 {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range steps {
		if executed[s.ID] {
			done++
		}
	}
	return float64(done) / float64(len(steps))
}

// frequencyFactor: min(n / saturation, 1)
func frequencyFactor(n, saturation int) float64 {
	if saturation <= 0 {
		return 0
	}
	return clamp01(float64(n) / float64(saturation))
}

// relevanceFactor: the baseline, or the mean retrieval score in retrieval mode
func relevanceFactor(mode RelevanceMode, baseline float64, scores []float64) float64 {
	if mode != RelevanceRetrieval || len(scores) == 0 {
		return baseline
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return clamp01(sum / float64(len(scores)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
