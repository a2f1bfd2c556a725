package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/providers"
)

// Shape declares what a stage expects back from the model.
type Shape string

const (
	ShapeText Shape = "text"
	ShapeJSON Shape = "json"
)

// Stage describes one agent call.
type Stage struct {
	Name string
	// BuildPrompt is called lazily so stages can chain on prior output.
	BuildPrompt func() string
	// ImagePath attaches a page image (vision stages).
	ImagePath string
	Shape     Shape
}

// StageMetadata carries accounting for a stage run.
type StageMetadata struct {
	Provider string               `json:"provider"`
	Model    string               `json:"model"`
	Attempts int                  `json:"attempts"`
	Tokens   providers.TokenUsage `json:"tokens"`
	Duration time.Duration        `json:"duration"`
}

// StageResult is the outcome of one agent stage.
type StageResult struct {
	Stage   string         `json:"stage"`
	Success bool           `json:"success"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	// ParseFailed marks a reply that arrived from a live model but
	// carried no parseable JSON, as opposed to the completer call
	// itself failing.
	ParseFailed bool          `json:"parse_failed,omitempty"`
	Metadata    StageMetadata `json:"metadata"`
}

// Runner executes agent stages against a TextCompleter.
type Runner struct {
	completer providers.TextCompleter
	logger    *slog.Logger
}

// NewRunner creates a stage runner.
func NewRunner(completer providers.TextCompleter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{completer: completer, logger: logger}
}

// Run executes a single stage. JSON-shaped stages request json_object
// output and parse the reply with the balanced-brace scanner; a reply
// with no JSON object fails the stage.
func (r *Runner) Run(ctx context.Context, stage Stage) *StageResult {
	start := time.Now()
	result := &StageResult{Stage: stage.Name}

	req := &providers.CompletionRequest{
		Prompt:    stage.BuildPrompt(),
		ImagePath: stage.ImagePath,
		JSONOnly:  stage.Shape == ShapeJSON,
	}

	completion, err := r.completer.Complete(ctx, req)
	if completion != nil {
		result.Metadata = StageMetadata{
			Provider: completion.Provider,
			Model:    completion.ModelUsed,
			Attempts: completion.Attempts,
			Tokens:   completion.Tokens,
		}
	}
	result.Metadata.Duration = time.Since(start)

	if err != nil || completion == nil || !completion.Success {
		result.Error = "completion failed"
		if completion != nil && completion.ErrorMessage != "" {
			result.Error = completion.ErrorMessage
		}
		r.logger.Error("agent stage failed", "stage", stage.Name, "error", result.Error)
		return result
	}

	switch stage.Shape {
	case ShapeJSON:
		data, parseErr := JSON(completion.Content)
		if parseErr != nil {
			result.Error = parseErr.Error()
			result.ParseFailed = true
			r.logger.Error("agent stage returned no parseable JSON",
				"stage", stage.Name, "content_length", len(completion.Content))
			return result
		}
		result.Data = data
	default:
		result.Text = completion.Content
	}

	result.Success = true
	r.logger.Debug("agent stage complete",
		"stage", stage.Name,
		"tokens", result.Metadata.Tokens.TotalTokens,
		"duration", result.Metadata.Duration)
	return result
}
