package models

import "time"

// FactSource records who supplied a confirmed fact.
type FactSource string

const (
	FactSourceUser     FactSource = "user"
	FactSourceInferred FactSource = "inferred"
)

// ConfirmedFact is an observation validated for the current incident.
// The session's fact list is append-only.
type ConfirmedFact struct {
	Text        string     `json:"text"`
	Source      FactSource `json:"source"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
}

// ExecutedStep records that a step's observation was actually carried out.
type ExecutedStep struct {
	StepID     string    `json:"step_id"`
	Result     string    `json:"result"`
	ExecutedAt time.Time `json:"executed_at"`
}

// ConfidenceFactors is the per-factor breakdown behind a hypothesis'
// confidence. Values are in [0,1] before weighting.
type ConfidenceFactors struct {
	FactCoverage float64 `json:"fact_coverage"`
	StepProgress float64 `json:"step_progress"`
	Frequency    float64 `json:"frequency"`
	Relevance    float64 `json:"relevance"`
}

// Hypothesis is a scored belief that RootCause explains the problem.
// Hypotheses are rebuilt every turn and never patched in place.
type Hypothesis struct {
	RootCause         string            `json:"root_cause"`
	Confidence        float64           `json:"confidence"`
	SupportingStepIDs []string          `json:"supporting_step_ids"`
	MissingFacts      []string          `json:"missing_facts"`
	NextStepID        string            `json:"next_step_id"`
	Factors           ConfidenceFactors `json:"factors"`
}

// Supports reports whether stepID is one of the hypothesis' supporting steps.
func (h Hypothesis) Supports(stepID string) bool {
	for _, id := range h.SupportingStepIDs {
		if id == stepID {
			return true
		}
	}
	return false
}

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one message of the dialogue.
type TranscriptEntry struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text"`
	ActionKind ActionKind `json:"action_kind,omitempty"`
	At         time.Time  `json:"at"`
}

// SessionState is the aggregate root of a diagnosis. It is owned by the
// caller and passed by value; the engine keeps no state between calls.
type SessionState struct {
	ID               string `json:"id"`
	ProblemStatement string `json:"problem_statement"`

	ConfirmedFacts   []ConfirmedFact `json:"confirmed_facts"`
	ActiveHypotheses []Hypothesis    `json:"active_hypotheses"`
	ExecutedSteps    []ExecutedStep  `json:"executed_steps"`

	// RecommendedStepIDs holds every step id ever recommended, in first
	// recommendation order, without duplicates.
	RecommendedStepIDs []string `json:"recommended_step_ids"`

	// PendingStepID is the step recommended by the last turn, awaiting
	// the operator's feedback. Empty when nothing is pending.
	PendingStepID string `json:"pending_step_id"`

	Transcript []TranscriptEntry `json:"transcript"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session for a problem statement.
func NewSession(id, problem string, now time.Time) SessionState {
	return SessionState{
		ID:               id,
		ProblemStatement: problem,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy so callers can derive a new state without
// aliasing the slices of the original.
func (s SessionState) Clone() SessionState {
	out := s
	out.ConfirmedFacts = cloneSlice(s.ConfirmedFacts)
	out.ExecutedSteps = cloneSlice(s.ExecutedSteps)
	out.RecommendedStepIDs = cloneSlice(s.RecommendedStepIDs)
	out.Transcript = cloneSlice(s.Transcript)
	if s.ActiveHypotheses != nil {
		out.ActiveHypotheses = make([]Hypothesis, len(s.ActiveHypotheses))
		for i, h := range s.ActiveHypotheses {
			h.SupportingStepIDs = cloneSlice(h.SupportingStepIDs)
			h.MissingFacts = cloneSlice(h.MissingFacts)
			out.ActiveHypotheses[i] = h
		}
	}
	return out
}

// FactTexts returns the text of every confirmed fact in session order.
func (s SessionState) FactTexts() []string {
	texts := make([]string, 0, len(s.ConfirmedFacts))
	for _, f := range s.ConfirmedFacts {
		texts = append(texts, f.Text)
	}
	return texts
}

// ExecutedSet returns the ids of executed steps as a set.
func (s SessionState) ExecutedSet() map[string]bool {
	set := make(map[string]bool, len(s.ExecutedSteps))
	for _, e := range s.ExecutedSteps {
		set[e.StepID] = true
	}
	return set
}

// IsExecuted reports whether stepID has been executed.
func (s SessionState) IsExecuted(stepID string) bool {
	for _, e := range s.ExecutedSteps {
		if e.StepID == stepID {
			return true
		}
	}
	return false
}

// WasRecommended reports whether stepID was ever recommended.
func (s SessionState) WasRecommended(stepID string) bool {
	for _, id := range s.RecommendedStepIDs {
		if id == stepID {
			return true
		}
	}
	return false
}

// TopHypothesis returns the highest-confidence hypothesis, if any.
func (s SessionState) TopHypothesis() (Hypothesis, bool) {
	if len(s.ActiveHypotheses) == 0 {
		return Hypothesis{}, false
	}
	return s.ActiveHypotheses[0], true
}

// RecordRecommendation adds stepID to the recommended set and marks it pending.
func (s *SessionState) RecordRecommendation(stepID string) {
	if !s.WasRecommended(stepID) {
		s.RecommendedStepIDs = append(s.RecommendedStepIDs, stepID)
	}
	s.PendingStepID = stepID
}

// MarkExecuted records stepID as executed. Executing an already executed
// step is a no-op. Clears PendingStepID when it matches.
func (s *SessionState) MarkExecuted(stepID, result string, at time.Time) {
	if s.PendingStepID == stepID {
		s.PendingStepID = ""
	}
	if s.IsExecuted(stepID) {
		return
	}
	s.ExecutedSteps = append(s.ExecutedSteps, ExecutedStep{
		StepID:     stepID,
		Result:     result,
		ExecutedAt: at,
	})
}

// AppendTranscript adds a dialogue message.
func (s *SessionState) AppendTranscript(role Role, text string, kind ActionKind, at time.Time) {
	s.Transcript = append(s.Transcript, TranscriptEntry{
		Role:       role,
		Text:       text,
		ActionKind: kind,
		At:         at,
	})
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
