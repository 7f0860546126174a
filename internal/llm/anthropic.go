package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultMaxTokens      = 512
)

// messageClient is the subset of the Anthropic Messages API we use.
type messageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicConfig configures an AnthropicInterpreter.
type AnthropicConfig struct {
	// APIKey is optional; the SDK falls back to ANTHROPIC_API_KEY.
	APIKey    string
	Model     string
	MaxTokens int
}

// AnthropicInterpreter interprets operator messages with Claude.
type AnthropicInterpreter struct {
	messages messageClient
	config   AnthropicConfig
	logger   *logging.Logger
}

// NewAnthropicInterpreter creates an interpreter backed by the Messages API.
func NewAnthropicInterpreter(cfg AnthropicConfig) *AnthropicInterpreter {
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(opts...)

	return newAnthropicInterpreter(&client.Messages, cfg)
}

func newAnthropicInterpreter(messages messageClient, cfg AnthropicConfig) *AnthropicInterpreter {
	return &AnthropicInterpreter{
		messages: messages,
		config:   cfg,
		logger:   logging.GetLogger("llm.anthropic"),
	}
}

func (a *AnthropicInterpreter) Name() string {
	return "anthropic"
}

// ExtractFacts asks the model for the facts stated in text.
func (a *AnthropicInterpreter) ExtractFacts(ctx context.Context, text string, tc TurnContext) ([]string, error) {
	raw, err := a.complete(ctx, extractFactsSystemPrompt, renderContext(text, tc))
	if err != nil {
		return nil, a.fail("extract_facts", err)
	}
	facts, err := parseFacts(raw)
	if err != nil {
		return nil, a.fail("extract_facts", err)
	}
	a.logger.Debug("Extracted %d facts", len(facts))
	return facts, nil
}

// ClassifyFeedback asks the model whether the pending check was performed.
func (a *AnthropicInterpreter) ClassifyFeedback(ctx context.Context, text string, tc TurnContext) (bool, error) {
	raw, err := a.complete(ctx, classifyFeedbackSystemPrompt, renderContext(text, tc))
	if err != nil {
		return false, a.fail("classify_feedback", err)
	}
	executed, err := parseFeedback(raw)
	if err != nil {
		return false, a.fail("classify_feedback", err)
	}
	return executed, nil
}

func (a *AnthropicInterpreter) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: int64(a.config.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var parts []string
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, ""), nil
}

func (a *AnthropicInterpreter) fail(op string, err error) error {
	return &models.CollaboratorError{Collaborator: a.Name(), Op: op, Err: err}
}
