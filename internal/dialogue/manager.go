// Package dialogue runs diagnosis turns: it interprets the operator's
// message, updates the hypotheses, asks the engine for the next action and
// persists the session.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/hypothesis"
	"github.com/moolen/sleuth/internal/llm"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/metrics"
	"github.com/moolen/sleuth/internal/models"
	"github.com/moolen/sleuth/internal/recommend"
	"github.com/moolen/sleuth/internal/session"
)

// TurnResult is the outcome of one turn.
type TurnResult struct {
	Session models.SessionState
	Action  models.Action
	Message string
}

// MarshalJSON encodes the action as a tagged envelope.
func (r TurnResult) MarshalJSON() ([]byte, error) {
	action, err := models.MarshalAction(r.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Session models.SessionState `json:"session"`
		Action  json.RawMessage     `json:"action"`
		Message string              `json:"message"`
	}{r.Session, action, r.Message})
}

// Options configures a Manager. Store, Sessions and Interpreter are required.
type Options struct {
	Store       evidence.Store
	Sessions    session.Store
	Interpreter llm.Interpreter
	Policy      EnginePolicy
	Metrics     *metrics.Metrics // optional
	Tracer      trace.Tracer     // optional, defaults to the global provider

	// Clock and NewID are overridable for tests.
	Clock func() time.Time
	NewID func() string
}

// Manager holds no session state of its own; each call loads the session
// from the store and writes it back. Turns on the same session are
// serialised, turns on different sessions run concurrently.
type Manager struct {
	store       evidence.Store
	sessions    session.Store
	interpreter llm.Interpreter
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	clock       func() time.Time
	newID       func() string

	policy atomic.Pointer[EnginePolicy]
	locks  *session.Locker
	logger *logging.Logger
}

// NewManager validates opts and returns a ready Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("evidence store is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Interpreter == nil {
		return nil, fmt.Errorf("interpreter is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	m := &Manager{
		store:       opts.Store,
		sessions:    opts.Sessions,
		interpreter: opts.Interpreter,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		clock:       opts.Clock,
		newID:       opts.NewID,
		locks:       session.NewLocker(),
		logger:      logging.GetLogger("dialogue"),
	}
	if m.tracer == nil {
		m.tracer = otel.GetTracerProvider().Tracer("sleuth.dialogue")
	}
	if m.clock == nil {
		m.clock = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	policy := opts.Policy
	m.policy.Store(&policy)
	return m, nil
}

// Policy returns the policy used by new turns.
func (m *Manager) Policy() EnginePolicy {
	return *m.policy.Load()
}

// SetPolicy replaces the policy. Turns already running finish with the
// policy they started with.
func (m *Manager) SetPolicy(p EnginePolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.policy.Store(&p)
	m.logger.Info("Engine policy updated")
	return nil
}

// StartSession creates a session for problem and runs the first engine cycle.
func (m *Manager) StartSession(ctx context.Context, problem string) (res TurnResult, err error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "dialogue.StartSession")
	defer func() { m.finish(span, start, err) }()

	problem = strings.TrimSpace(problem)
	if problem == "" {
		return TurnResult{}, models.NewValidationError("problem statement is required")
	}

	id := m.newID()
	span.SetAttributes(attribute.String("session.id", id))
	ctx = logging.ContextWithSession(ctx, id)

	unlock := m.locks.Lock(id)
	defer unlock()

	now := m.clock()
	s := models.NewSession(id, problem, now)
	s.AppendTranscript(models.RoleUser, problem, "", now)

	res, err = m.advance(ctx, s, nil, now)
	if err != nil {
		return TurnResult{}, err
	}
	m.metrics.ObserveSessionStarted()
	m.logger.WithContext(ctx).InfoWithFields("Session started",
		logging.Field("action", string(res.Action.Kind())),
		logging.Field("hypotheses", len(res.Session.ActiveHypotheses)),
	)
	return res, nil
}

// HandleTurn processes one operator message for sessionID. On error nothing
// is persisted and the stored session is unchanged.
func (m *Manager) HandleTurn(ctx context.Context, sessionID, text string) (res TurnResult, err error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "dialogue.HandleTurn",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer func() { m.finish(span, start, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, models.NewValidationError("message is required")
	}
	ctx = logging.ContextWithSession(ctx, sessionID)

	unlock := m.locks.Lock(sessionID)
	defer unlock()

	s, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	now := m.clock()
	tc, err := m.turnContext(ctx, &s)
	if err != nil {
		return TurnResult{}, err
	}
	s.AppendTranscript(models.RoleUser, text, "", now)

	if s.PendingStepID != "" {
		executed, err := m.interpreter.ClassifyFeedback(ctx, text, tc)
		if err != nil {
			return TurnResult{}, fmt.Errorf("failed to classify feedback: %w", err)
		}
		span.SetAttributes(
			attribute.String("step.pending", s.PendingStepID),
			attribute.Bool("step.executed", executed),
		)
		if executed {
			m.logger.WithContext(ctx).Debug("Step %s marked executed", s.PendingStepID)
			s.MarkExecuted(s.PendingStepID, text, now)
		}
	}

	texts, err := m.interpreter.ExtractFacts(ctx, text, tc)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to extract facts: %w", err)
	}
	facts := make([]models.ConfirmedFact, 0, len(texts))
	for _, t := range texts {
		facts = append(facts, models.ConfirmedFact{Text: t, Source: models.FactSourceUser, ConfirmedAt: now})
	}
	span.SetAttributes(attribute.Int("facts.new", len(facts)))

	return m.advance(ctx, s, facts, now)
}

// GetSession returns the stored session.
func (m *Manager) GetSession(ctx context.Context, id string) (models.SessionState, error) {
	return m.sessions.Get(ctx, id)
}

// SearchSteps exposes catalog retrieval to the surfaces.
func (m *Manager) SearchSteps(ctx context.Context, query string, topK int) ([]models.ScoredStep, error) {
	return m.store.Search(ctx, query, topK, nil)
}

// advance runs tracker and engine on s, records the action and persists
// the result.
func (m *Manager) advance(ctx context.Context, s models.SessionState, facts []models.ConfirmedFact, now time.Time) (TurnResult, error) {
	policy := m.policy.Load()

	next, err := hypothesis.NewTracker(m.store, policy.Tracker).UpdateHypotheses(ctx, s, facts)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to update hypotheses: %w", err)
	}
	action, err := recommend.NewEngine(m.store, policy.Engine).RecommendNextAction(ctx, next)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to recommend next action: %w", err)
	}

	if rs, ok := action.(models.RecommendStep); ok {
		next.RecordRecommendation(rs.Step.ID)
	} else {
		next.PendingStepID = ""
	}

	message := Format(action)
	next.AppendTranscript(models.RoleAssistant, message, action.Kind(), now)
	next.UpdatedAt = now

	if err := m.sessions.Put(ctx, next); err != nil {
		return TurnResult{}, fmt.Errorf("failed to save session: %w", err)
	}

	phase := policy.Engine.Diversity.PhaseFor(next)
	m.metrics.ObserveState(next, action, string(phase))
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("action.kind", string(action.Kind())),
		attribute.String("phase", string(phase)),
		attribute.Int("hypotheses", len(next.ActiveHypotheses)),
	)
	m.logger.WithContext(ctx).DebugWithFields("Turn complete",
		logging.Field("action", string(action.Kind())),
		logging.Field("phase", string(phase)),
		logging.Field("facts", len(next.ConfirmedFacts)),
		logging.Field("executed", len(next.ExecutedSteps)),
	)

	return TurnResult{Session: next, Action: action, Message: message}, nil
}

// turnContext describes the session to the interpreter. A pending step the
// catalog no longer knows is dropped.
func (m *Manager) turnContext(ctx context.Context, s *models.SessionState) (llm.TurnContext, error) {
	tc := llm.TurnContext{
		ProblemStatement: s.ProblemStatement,
		ConfirmedFacts:   s.FactTexts(),
	}
	if s.PendingStepID == "" {
		return tc, nil
	}
	step, err := m.store.GetStep(ctx, s.PendingStepID)
	if models.IsNotFound(err) {
		m.logger.WithContext(ctx).Warn("Pending step %s is not in the catalog, ignoring it", s.PendingStepID)
		s.PendingStepID = ""
		return tc, nil
	}
	if err != nil {
		return llm.TurnContext{}, fmt.Errorf("failed to load pending step: %w", err)
	}
	tc.PendingObservation = step.ObservedFact
	tc.PendingMethod = step.Method
	return tc, nil
}

func (m *Manager) finish(span trace.Span, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	m.metrics.ObserveTurn(time.Since(start), err)
}
