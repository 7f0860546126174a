// Package hypothesis rebuilds the set of competing root-cause hypotheses
// from a session's confirmed facts and executed steps.
package hypothesis

import (
	"context"
	"sort"
	"strings"

	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
	"github.com/moolen/sleuth/internal/retriever"
)

// Tracker computes hypotheses. It holds no per-session state: every call
// recomputes the full set from its inputs and the evidence store.
type Tracker struct {
	store     evidence.Store
	retriever *retriever.Retriever
	cfg       Config
	logger    *logging.Logger
}

// NewTracker creates a tracker over store.
func NewTracker(store evidence.Store, cfg Config) *Tracker {
	return &Tracker{
		store:     store,
		retriever: retriever.New(store),
		cfg:       cfg,
		logger:    logging.GetLogger("hypothesis"),
	}
}

// group collects the evidence for one root cause.
type group struct {
	rootCause string
	// retrieved holds the steps returned by retrieval, in retrieval order.
	retrieved []models.ScoredStep
	// executed holds executed catalog steps with the same root cause.
	executed []models.DiagnosticStep
}

// UpdateHypotheses appends newFacts to the session and replaces its active
// hypotheses with a freshly computed set. The input session is not
// modified; on error the zero SessionState is returned.
func (t *Tracker) UpdateHypotheses(ctx context.Context, session models.SessionState, newFacts []models.ConfirmedFact) (models.SessionState, error) {
	next := session.Clone()
	for _, f := range newFacts {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		next.ConfirmedFacts = append(next.ConfirmedFacts, f)
	}

	hypotheses, err := t.Compute(ctx, next)
	if err != nil {
		return models.SessionState{}, err
	}
	next.ActiveHypotheses = hypotheses
	return next, nil
}

// Compute returns the ranked hypotheses for a session without modifying it.
func (t *Tracker) Compute(ctx context.Context, s models.SessionState) ([]models.Hypothesis, error) {
	retrieved, err := t.retriever.ForSession(ctx, s, t.cfg.RetrievalTopK)
	if err != nil {
		return nil, err
	}

	groups, err := t.attachExecuted(ctx, s, groupByRootCause(retrieved))
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return []models.Hypothesis{}, nil
	}

	facts := s.FactTexts()
	executed := s.ExecutedSet()
	hypotheses := make([]models.Hypothesis, 0, len(groups))
	for _, g := range groups {
		hypotheses = append(hypotheses, t.build(g, facts, executed))
	}

	sort.SliceStable(hypotheses, func(i, j int) bool {
		return hypotheses[i].Confidence > hypotheses[j].Confidence
	})
	if len(hypotheses) > t.cfg.MaxHypotheses {
		hypotheses = hypotheses[:t.cfg.MaxHypotheses]
	}

	logger := t.logger.WithContext(ctx)
	for i, h := range hypotheses {
		logger.DebugWithFields("Hypothesis",
			logging.Field("rank", i+1),
			logging.Field("root_cause", h.RootCause),
			logging.Field("confidence", h.Confidence),
			logging.Field("supporting", len(h.SupportingStepIDs)),
			logging.Field("next_step", h.NextStepID),
		)
	}
	return hypotheses, nil
}

// groupByRootCause groups retrieved steps by root cause in first-seen
// order. Steps without a root cause support no hypothesis.
func groupByRootCause(retrieved []models.ScoredStep) []*group {
	var order []*group
	index := make(map[string]*group)
	for _, sc := range retrieved {
		rc := sc.Step.RootCause
		if rc == "" {
			continue
		}
		g, ok := index[rc]
		if !ok {
			g = &group{rootCause: rc}
			index[rc] = g
			order = append(order, g)
		}
		g.retrieved = append(g.retrieved, sc)
	}
	return order
}

// attachExecuted adds each executed step to the group of its root cause,
// opening a group when retrieval returned none of that root cause's
// steps. Retrieval never returns executed steps, so a root cause whose
// steps have all been run is only reachable through here. Unknown step
// ids are skipped.
func (t *Tracker) attachExecuted(ctx context.Context, s models.SessionState, groups []*group) ([]*group, error) {
	if len(s.ExecutedSteps) == 0 {
		return groups, nil
	}
	index := make(map[string]*group, len(groups))
	for _, g := range groups {
		index[g.rootCause] = g
	}

	seen := make(map[string]bool, len(s.ExecutedSteps))
	for _, e := range s.ExecutedSteps {
		if seen[e.StepID] {
			continue
		}
		seen[e.StepID] = true

		step, err := t.store.GetStep(ctx, e.StepID)
		if models.IsNotFound(err) {
			t.logger.Debug("Executed step %s is not in the catalog, ignoring", e.StepID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if step.RootCause == "" {
			continue
		}
		g, ok := index[step.RootCause]
		if !ok {
			g = &group{rootCause: step.RootCause}
			index[step.RootCause] = g
			groups = append(groups, g)
		}
		g.executed = append(g.executed, step)
	}
	return groups, nil
}

func (t *Tracker) build(g *group, facts []string, executed map[string]bool) models.Hypothesis {
	pending := make([]models.DiagnosticStep, 0, len(g.retrieved))
	scores := make([]float64, 0, len(g.retrieved))
	for _, sc := range g.retrieved {
		pending = append(pending, sc.Step)
		scores = append(scores, sc.Score)
	}
	models.SortSteps(pending)

	members := make([]models.DiagnosticStep, 0, len(pending)+len(g.executed))
	members = append(members, pending...)
	members = append(members, g.executed...)
	models.SortSteps(members)

	factors := models.ConfidenceFactors{
		FactCoverage: factCoverageFactor(members, facts),
		StepProgress: stepProgressFactor(members, executed),
		Frequency:    frequencyFactor(len(members), t.cfg.FrequencySaturation),
		Relevance:    relevanceFactor(t.cfg.RelevanceMode, t.cfg.RelevanceBaseline, scores),
	}

	supporting := make([]string, len(members))
	for i, m := range members {
		supporting[i] = m.ID
	}

	h := models.Hypothesis{
		RootCause:         g.rootCause,
		Confidence:        score(factors, t.cfg.Weights),
		SupportingStepIDs: supporting,
		MissingFacts:      missingFacts(pending, facts, t.cfg.MaxMissingFacts),
		Factors:           factors,
	}
	for _, step := range pending {
		if !executed[step.ID] {
			h.NextStepID = step.ID
			break
		}
	}
	return h
}

// missingFacts returns the observed facts of the first limit steps that no
// confirmed fact matches. steps must be sorted by step index.
func missingFacts(steps []models.DiagnosticStep, facts []string, limit int) []string {
	if len(steps) > limit {
		steps = steps[:limit]
	}
	missing := make([]string, 0, len(steps))
	for _, s := range steps {
		if s.ObservedFact != "" && !matchesAny(s.ObservedFact, facts) {
			missing = append(missing, s.ObservedFact)
		}
	}
	return missing
}
