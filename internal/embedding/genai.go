package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
)

// DefaultGenAIModel is used when no model is configured.
const DefaultGenAIModel = "gemini-embedding-001"

// GenAIEmbedder generates embeddings using Google's Gemini API.
type GenAIEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
	dim      int
	logger   *logging.Logger
}

// GenAIConfig configures a GenAIEmbedder.
type GenAIConfig struct {
	APIKey string
	Model  string
	// TaskType is passed through to the API, e.g. "RETRIEVAL_DOCUMENT".
	TaskType   string
	Dimensions int
}

// NewGenAIEmbedder creates a Gemini embedding client.
func NewGenAIEmbedder(ctx context.Context, cfg GenAIConfig) (*GenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenAIModel
	}
	if cfg.TaskType == "" {
		cfg.TaskType = "SEMANTIC_SIMILARITY"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEmbedder{
		client:   client,
		model:    cfg.Model,
		taskType: cfg.TaskType,
		dim:      cfg.Dimensions,
		logger:   logging.GetLogger("embedding.genai"),
	}, nil
}

// Embed calls the EmbedContent endpoint for a single text. Failures are
// reported as *models.CollaboratorError.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(e.dim)
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             e.taskType,
			OutputDimensionality: &dim,
		},
	)
	if err != nil {
		e.logger.Debug("EmbedContent failed: %v", err)
		return nil, &models.CollaboratorError{Collaborator: e.Name(), Op: "embed", Err: err}
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, &models.CollaboratorError{Collaborator: e.Name(), Op: "embed", Err: fmt.Errorf("no embeddings returned")}
	}
	return result.Embeddings[0].Values, nil
}

func (e *GenAIEmbedder) Dimensions() int { return e.dim }

func (e *GenAIEmbedder) Name() string { return "genai:" + e.model }
