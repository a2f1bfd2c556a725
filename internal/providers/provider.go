// Package providers defines the pluggable capabilities the pipeline
// depends on: OCR text extraction and LLM text completion. The core
// never knows provider names; tests inject deterministic mocks.
package providers

import (
	"context"
	"time"
)

// TextCompleter is the LLM capability used by the agent stages.
//
// Implementations never "throw" on model-side problems: transport and
// API errors are classified into the result envelope with Success=false.
// The returned error mirrors the envelope for callers that prefer
// error-style handling; it is always non-nil iff Success is false.
type TextCompleter interface {
	// Complete sends a prompt (optionally with an attached image) and
	// returns the completion envelope.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Name returns the provider identifier (e.g. "openai-compatible").
	Name() string

	// Ready probes provider reachability.
	Ready(ctx context.Context) error
}

// OCRReader extracts text from page images.
type OCRReader interface {
	// Name returns the provider identifier (e.g. "olmocr").
	Name() string

	// Extract reads the text of a single page image. Transport errors
	// are retried internally; on exhaustion Success=false is returned.
	Extract(ctx context.Context, imagePath string) (*OCRResult, error)

	// ExtractAll processes images in order. Individual failures are
	// substituted with an empty string so later stages see a stable
	// page count.
	ExtractAll(ctx context.Context, imagePaths []string) []string

	// Ready probes service reachability.
	Ready(ctx context.Context) error
}

// TokenUsage accounts for one completion call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a request to a TextCompleter.
type CompletionRequest struct {
	Prompt string `json:"prompt"`

	// ImagePath attaches a page image for vision models (sent as a
	// base64 data URL).
	ImagePath string `json:"image_path,omitempty"`

	// Generation parameters; zero values use the client defaults.
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// JSONOnly requests json_object response format when the provider
	// supports it.
	JSONOnly bool `json:"json_only,omitempty"`

	Timeout time.Duration `json:"-"`
}

// CompletionResult is the complete response from an LLM call.
type CompletionResult struct {
	Content string     `json:"content"`
	Tokens  TokenUsage `json:"tokens"`

	Provider      string        `json:"provider"`
	ModelUsed     string        `json:"model_used"`
	Attempts      int           `json:"attempts"`
	ExecutionTime time.Duration `json:"execution_time"`

	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// OCRResult is the response from an OCR call.
type OCRResult struct {
	Success       bool          `json:"success"`
	Text          string        `json:"text"`
	RetryCount    int           `json:"retry_count"`
	ExecutionTime time.Duration `json:"execution_time"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// Error type classifications used in result envelopes.
const (
	ErrTypeTransport   = "transport"
	ErrTypeRateLimit   = "rate_limit"
	ErrTypeAuth        = "auth"
	ErrTypeAPI         = "api_error"
	ErrTypeCancelled   = "context_cancelled"
	ErrTypeEmptyResult = "empty_result"
)
