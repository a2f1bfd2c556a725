package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const OpenAICompatibleName = "openai-compatible"

// OpenAIConfig holds configuration for the OpenAI-compatible completer.
// Any endpoint speaking the OpenAI chat-completions protocol works
// (Groq, OpenAI, a local gateway).
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	HTTPClient  *http.Client // Optional (tests)
}

// OpenAICompleter implements TextCompleter using the official OpenAI SDK
// pointed at a configurable base URL.
type OpenAICompleter struct {
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	client      openai.Client
}

// NewOpenAICompleter creates a completer from config.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// SDK-level retries are disabled; retry policy lives here so
		// that API-side errors are never retried.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAICompleter{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		client:      openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAICompleter) Name() string {
	return OpenAICompatibleName
}

// Ready verifies the endpoint is reachable and the API key is valid.
func (c *OpenAICompleter) Ready(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("models list failed: %w", err)
	}
	return nil
}

// Complete sends a chat completion request. Transport errors are
// retried with exponential backoff; API-side errors are classified
// into the envelope without retrying.
func (c *OpenAICompleter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	start := time.Now()
	result := &CompletionResult{
		Provider:  OpenAICompatibleName,
		ModelUsed: c.resolveModel(req),
	}

	params, err := c.buildParams(req)
	if err != nil {
		result.ErrorType = ErrTypeAPI
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *openai.ChatCompletion
	attempts := 0
	err = retry.Do(
		func() error {
			attempts++
			var callErr error
			resp, callErr = c.client.Chat.Completions.New(callCtx, *params)
			return callErr
		},
		retry.Context(callCtx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransportError),
	)
	result.Attempts = attempts
	result.ExecutionTime = time.Since(start)

	if err != nil {
		result.ErrorType, result.ErrorMessage = classifyCompletionError(ctx, err)
		return result, fmt.Errorf("completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		result.ErrorType = ErrTypeEmptyResult
		result.ErrorMessage = "completion returned no choices"
		return result, errors.New(result.ErrorMessage)
	}

	result.Success = true
	result.Content = resp.Choices[0].Message.Content
	result.ModelUsed = resp.Model
	result.Tokens = TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return result, nil
}

func (c *OpenAICompleter) resolveModel(req *CompletionRequest) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return c.model
}

func (c *OpenAICompleter) buildParams(req *CompletionRequest) (*openai.ChatCompletionNewParams, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	var message openai.ChatCompletionMessageParamUnion
	if req.ImagePath != "" {
		dataURL, err := imageDataURL(req.ImagePath)
		if err != nil {
			return nil, err
		}
		message = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.Prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
		})
	} else {
		message = openai.UserMessage(req.Prompt)
	}

	params := &openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.resolveModel(req)),
		Messages:    []openai.ChatCompletionMessageParamUnion{message},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.JSONOnly {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

// imageDataURL reads an image file and encodes it as a base64 data URL.
func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	mime := "image/png"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".webp":
		mime = "image/webp"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// isTransportError reports whether err is a network-level failure that
// merits a retry. API responses (any HTTP status) are never retried.
func isTransportError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func classifyCompletionError(ctx context.Context, err error) (errType, msg string) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return ErrTypeRateLimit, apiErr.Message
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrTypeAuth, apiErr.Message
		default:
			return ErrTypeAPI, fmt.Sprintf("status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
	}
	if ctx.Err() != nil {
		return ErrTypeCancelled, ctx.Err().Error()
	}
	return ErrTypeTransport, err.Error()
}

var _ TextCompleter = (*OpenAICompleter)(nil)
