package llm

import (
	"context"

	"github.com/moolen/sleuth/internal/logging"
)

// FallbackObserver is told whenever the fallback interpreter had to answer.
type FallbackObserver func(op string, err error)

type fallbackInterpreter struct {
	primary  Interpreter
	fallback Interpreter
	observe  FallbackObserver
	logger   *logging.Logger
}

// WithFallback returns an interpreter that answers with primary and, when
// primary fails for any reason, with fallback. observe may be nil.
func WithFallback(primary, fallback Interpreter, observe FallbackObserver) Interpreter {
	return &fallbackInterpreter{
		primary:  primary,
		fallback: fallback,
		observe:  observe,
		logger:   logging.GetLogger("llm"),
	}
}

func (f *fallbackInterpreter) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *fallbackInterpreter) ExtractFacts(ctx context.Context, text string, tc TurnContext) ([]string, error) {
	facts, err := f.primary.ExtractFacts(ctx, text, tc)
	if err == nil {
		return facts, nil
	}
	f.degraded(ctx, "extract_facts", err)
	return f.fallback.ExtractFacts(ctx, text, tc)
}

func (f *fallbackInterpreter) ClassifyFeedback(ctx context.Context, text string, tc TurnContext) (bool, error) {
	executed, err := f.primary.ClassifyFeedback(ctx, text, tc)
	if err == nil {
		return executed, nil
	}
	f.degraded(ctx, "classify_feedback", err)
	return f.fallback.ClassifyFeedback(ctx, text, tc)
}

func (f *fallbackInterpreter) degraded(ctx context.Context, op string, err error) {
	f.logger.WithContext(ctx).WarnWithFields("Interpreter failed, using fallback",
		logging.Field("op", op),
		logging.Field("primary", f.primary.Name()),
		logging.Field("fallback", f.fallback.Name()),
		logging.Field("error", err.Error()),
	)
	if f.observe != nil {
		f.observe(op, err)
	}
}
