package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MockCompleter is a scripted TextCompleter for tests. Responses are
// returned in FIFO order; when the queue empties the last response
// repeats. Safe for concurrent use.
type MockCompleter struct {
	mu        sync.Mutex
	responses []string
	calls     []*CompletionRequest

	// ShouldFail makes every call return a failure envelope.
	ShouldFail bool
	// FailAfter fails calls once CallCount exceeds it (0 = disabled).
	FailAfter int
	// ErrType used for scripted failures; defaults to api_error.
	ErrType string
}

// NewMockCompleter creates a mock that replays the given responses.
func NewMockCompleter(responses ...string) *MockCompleter {
	return &MockCompleter{responses: responses}
}

func (m *MockCompleter) Name() string { return "mock" }

func (m *MockCompleter) Ready(_ context.Context) error { return nil }

func (m *MockCompleter) Complete(_ context.Context, req *CompletionRequest) (*CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	n := len(m.calls)

	if m.ShouldFail || (m.FailAfter > 0 && n > m.FailAfter) {
		errType := m.ErrType
		if errType == "" {
			errType = ErrTypeAPI
		}
		result := &CompletionResult{
			Provider:     "mock",
			ModelUsed:    "mock-model",
			Attempts:     1,
			ErrorType:    errType,
			ErrorMessage: fmt.Sprintf("scripted failure on call %d", n),
		}
		return result, errors.New(result.ErrorMessage)
	}

	content := ""
	if len(m.responses) > 0 {
		idx := n - 1
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		content = m.responses[idx]
	}

	return &CompletionResult{
		Content:   content,
		Provider:  "mock",
		ModelUsed: "mock-model",
		Attempts:  1,
		Success:   true,
		Tokens: TokenUsage{
			PromptTokens:     len(req.Prompt) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(req.Prompt) + len(content)) / 4,
		},
	}, nil
}

// CallCount returns the number of Complete calls made.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Call returns the i-th request, or nil if out of range.
func (m *MockCompleter) Call(i int) *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.calls) {
		return nil
	}
	return m.calls[i]
}

var _ TextCompleter = (*MockCompleter)(nil)

// MockOCRReader is a scripted OCRReader for tests. Texts maps image
// paths to OCR output; paths in Fail return a failure envelope.
type MockOCRReader struct {
	mu    sync.Mutex
	calls int

	Texts map[string]string
	Fail  map[string]bool
	// Down makes Ready return an error.
	Down bool
}

func (m *MockOCRReader) Name() string { return "mock-ocr" }

func (m *MockOCRReader) Ready(_ context.Context) error {
	if m.Down {
		return errors.New("OCR service down")
	}
	return nil
}

func (m *MockOCRReader) Extract(_ context.Context, imagePath string) (*OCRResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Fail[imagePath] {
		res := &OCRResult{ErrorMessage: "scripted OCR failure"}
		return res, errors.New(res.ErrorMessage)
	}
	return &OCRResult{Success: true, Text: m.Texts[imagePath]}, nil
}

func (m *MockOCRReader) ExtractAll(ctx context.Context, imagePaths []string) []string {
	texts := make([]string, len(imagePaths))
	for i, p := range imagePaths {
		res, err := m.Extract(ctx, p)
		if err != nil {
			continue
		}
		texts[i] = res.Text
	}
	return texts
}

// CallCount returns the number of Extract calls made.
func (m *MockOCRReader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ OCRReader = (*MockOCRReader)(nil)
