// Package recommend selects the single next action of a diagnosis from the
// session's active hypotheses.
package recommend

import (
	"context"
	"fmt"
	"sort"

	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
)

// Engine implements the decision policy. It keeps no state between calls.
type Engine struct {
	store  evidence.Store
	cfg    Config
	logger *logging.Logger
}

// NewEngine creates an engine that resolves step ids through store.
func NewEngine(store evidence.Store, cfg Config) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logging.GetLogger("recommend"),
	}
}

// RecommendNextAction returns exactly one action for the session. The
// first matching rule wins:
//
//  1. no hypotheses: AskInitialInfo
//  2. top confidence above the confirm threshold: ConfirmRootCause
//  3. top confidence above the discriminate threshold: a step supporting
//     the top hypothesis but not the runner-up, else the top's next step
//  4. weighted vote over the next steps of the leading hypotheses
//  5. AskSymptom for the top's first missing fact, else AskGeneral
//
// Executed steps are never recommended. Step ids the store cannot resolve
// are skipped; any other store error is returned.
func (e *Engine) RecommendNextAction(ctx context.Context, s models.SessionState) (models.Action, error) {
	hs := s.ActiveHypotheses
	if len(hs) == 0 {
		return models.AskInitialInfo{}, nil
	}
	top := hs[0]

	if top.Confidence > e.cfg.ConfirmThreshold {
		return models.ConfirmRootCause{
			RootCause:         top.RootCause,
			Confidence:        top.Confidence,
			SupportingStepIDs: append([]string(nil), top.SupportingStepIDs...),
		}, nil
	}

	r := &resolver{store: e.store, cache: make(map[string]*models.DiagnosticStep)}
	executed := s.ExecutedSet()
	phase := e.cfg.Diversity.PhaseFor(s)
	logger := e.logger.WithContext(ctx).WithField("phase", phase)

	if top.Confidence > e.cfg.DiscriminateThreshold {
		if len(hs) > 1 {
			step, ok, err := e.discriminatingStep(ctx, r, top, hs[1], executed)
			if err != nil {
				return nil, err
			}
			if ok {
				logger.Debug("Discriminating step %s separates %q from %q", step.ID, top.RootCause, hs[1].RootCause)
				return e.recommend(ctx, r, s, phase, step, top.RootCause, models.ReasonDiscriminating)
			}
		}
		step, ok, err := e.nextStep(ctx, r, top, executed)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.recommend(ctx, r, s, phase, step, top.RootCause, models.ReasonNextStep)
		}
	}

	voted, err := e.vote(ctx, r, s, phase, executed)
	if err != nil {
		return nil, err
	}
	if len(voted) > 0 {
		winner := voted[0]
		logger.DebugWithFields("Weighted vote winner",
			logging.Field("step", winner.Step.ID),
			logging.Field("vote", winner.Score),
			logging.Field("candidates", len(voted)),
		)
		return e.recommend(ctx, r, s, phase, winner.Step, winner.RootCause, models.ReasonWeightedVote)
	}

	if len(top.MissingFacts) > 0 {
		return models.AskSymptom{MissingFact: top.MissingFacts[0], RootCause: top.RootCause}, nil
	}
	return models.AskGeneral{}, nil
}

// discriminatingStep picks the lowest-index unexecuted step supporting top
// but not second.
func (e *Engine) discriminatingStep(ctx context.Context, r *resolver, top, second models.Hypothesis, executed map[string]bool) (models.DiagnosticStep, bool, error) {
	var diff []string
	for _, id := range top.SupportingStepIDs {
		if !second.Supports(id) {
			diff = append(diff, id)
		}
	}
	return r.lowestUnexecuted(ctx, diff, executed)
}

// nextStep returns the hypothesis' recorded next step, or failing that its
// lowest-index unexecuted supporting step.
func (e *Engine) nextStep(ctx context.Context, r *resolver, h models.Hypothesis, executed map[string]bool) (models.DiagnosticStep, bool, error) {
	if h.NextStepID != "" && !executed[h.NextStepID] {
		step, ok, err := r.get(ctx, h.NextStepID)
		if err != nil || ok {
			return step, ok, err
		}
	}
	return r.lowestUnexecuted(ctx, h.SupportingStepIDs, executed)
}

// vote ranks the next steps of the leading hypotheses by the summed
// confidence of the hypotheses proposing them, then applies the diversity
// cap for the session phase.
func (e *Engine) vote(ctx context.Context, r *resolver, s models.SessionState, phase Phase, executed map[string]bool) ([]Candidate, error) {
	hs := s.ActiveHypotheses
	if len(hs) > e.cfg.VotingHypotheses {
		hs = hs[:e.cfg.VotingHypotheses]
	}

	var order []string
	tally := make(map[string]*Candidate)
	for _, h := range hs {
		step, ok, err := e.nextStep(ctx, r, h, executed)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		c, seen := tally[step.ID]
		if !seen {
			c = &Candidate{Step: step, RootCause: h.RootCause}
			tally[step.ID] = c
			order = append(order, step.ID)
		}
		c.Score += h.Confidence
	}

	candidates := make([]Candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, *tally[id])
	}
	sortCandidates(candidates)
	return ApplyDiversity(candidates, phase, e.cfg.Diversity, 0), nil
}

// recommend builds a RecommendStep with alternatives drawn from every
// active hypothesis.
func (e *Engine) recommend(ctx context.Context, r *resolver, s models.SessionState, phase Phase, step models.DiagnosticStep, rootCause string, reason models.StepReason) (models.Action, error) {
	alts, err := e.alternatives(ctx, r, s, phase, step, rootCause)
	if err != nil {
		return nil, err
	}
	return models.RecommendStep{
		Step:         step,
		RootCause:    rootCause,
		Reason:       reason,
		Alternatives: alts,
	}, nil
}

func (e *Engine) alternatives(ctx context.Context, r *resolver, s models.SessionState, phase Phase, chosen models.DiagnosticStep, chosenRootCause string) ([]models.DiagnosticStep, error) {
	if e.cfg.MaxAlternatives == 0 {
		return nil, nil
	}
	executed := s.ExecutedSet()

	var order []string
	tally := make(map[string]*Candidate)
	for _, h := range s.ActiveHypotheses {
		for _, id := range h.SupportingStepIDs {
			if id == chosen.ID || executed[id] {
				continue
			}
			c, seen := tally[id]
			if !seen {
				step, ok, err := r.get(ctx, id)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				c = &Candidate{Step: step, RootCause: h.RootCause}
				tally[id] = c
				order = append(order, id)
			}
			c.Score += h.Confidence
		}
	}

	candidates := make([]Candidate, 0, len(order)+1)
	for _, id := range order {
		candidates = append(candidates, *tally[id])
	}
	sortCandidates(candidates)

	// The chosen step counts against its root cause's cap.
	ranked := append([]Candidate{{Step: chosen, RootCause: chosenRootCause}}, candidates...)
	kept := ApplyDiversity(ranked, phase, e.cfg.Diversity, e.cfg.MaxAlternatives+1)

	var out []models.DiagnosticStep
	for _, c := range kept[1:] {
		out = append(out, c.Step)
	}
	return out, nil
}

// sortCandidates orders by descending score, then step index, then id.
func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return models.StepLess(cs[i].Step, cs[j].Step)
	})
}

// resolver memoises step lookups for the duration of one decision.
type resolver struct {
	store evidence.Store
	// cache maps id to the step, or nil when the store reported it missing.
	cache map[string]*models.DiagnosticStep
}

func (r *resolver) get(ctx context.Context, id string) (models.DiagnosticStep, bool, error) {
	if step, ok := r.cache[id]; ok {
		if step == nil {
			return models.DiagnosticStep{}, false, nil
		}
		return *step, true, nil
	}
	step, err := r.store.GetStep(ctx, id)
	if models.IsNotFound(err) {
		r.cache[id] = nil
		return models.DiagnosticStep{}, false, nil
	}
	if err != nil {
		return models.DiagnosticStep{}, false, fmt.Errorf("failed to resolve step %q: %w", id, err)
	}
	r.cache[id] = &step
	return step, true, nil
}

// lowestUnexecuted resolves ids and returns the unexecuted one with the
// lowest step index.
func (r *resolver) lowestUnexecuted(ctx context.Context, ids []string, executed map[string]bool) (models.DiagnosticStep, bool, error) {
	var best models.DiagnosticStep
	found := false
	for _, id := range ids {
		if executed[id] {
			continue
		}
		step, ok, err := r.get(ctx, id)
		if err != nil {
			return models.DiagnosticStep{}, false, err
		}
		if !ok {
			continue
		}
		if !found || models.StepLess(step, best) {
			best, found = step, true
		}
	}
	return best, found, nil
}
