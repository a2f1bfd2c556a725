package providers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/openai/openai-go/v3"
)

func TestBuildParams_Validation(t *testing.T) {
	c := NewOpenAICompleter(OpenAIConfig{Model: "test-model"})

	if _, err := c.buildParams(nil); err == nil {
		t.Error("expected error for nil request")
	}
	if _, err := c.buildParams(&CompletionRequest{Prompt: "   "}); err == nil {
		t.Error("expected error for blank prompt")
	}
}

func TestBuildParams_Defaults(t *testing.T) {
	c := NewOpenAICompleter(OpenAIConfig{Model: "default-model", Temperature: 0.1, MaxTokens: 8192})

	params, err := c.buildParams(&CompletionRequest{Prompt: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if string(params.Model) != "default-model" {
		t.Errorf("model: got %s", params.Model)
	}
	if params.Temperature.Value != 0.1 {
		t.Errorf("temperature: got %v", params.Temperature.Value)
	}
	if params.MaxTokens.Value != 8192 {
		t.Errorf("max tokens: got %v", params.MaxTokens.Value)
	}

	// Per-request overrides win.
	params, err = c.buildParams(&CompletionRequest{Prompt: "hello", Model: "override", MaxTokens: 100})
	if err != nil {
		t.Fatal(err)
	}
	if string(params.Model) != "override" {
		t.Errorf("override model: got %s", params.Model)
	}
	if params.MaxTokens.Value != 100 {
		t.Errorf("override max tokens: got %v", params.MaxTokens.Value)
	}
}

func TestBuildParams_JSONMode(t *testing.T) {
	c := NewOpenAICompleter(OpenAIConfig{Model: "m"})

	params, err := c.buildParams(&CompletionRequest{Prompt: "extract", JSONOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected json_object response format")
	}
}

func TestImageDataURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0o644); err != nil {
		t.Fatal(err)
	}

	url, err := imageDataURL(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected prefix: %s", url[:30])
	}

	if _, err := imageDataURL("/nonexistent.png"); err == nil {
		t.Error("expected error for missing image")
	}
}

func TestClassifyCompletionError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{"rate limit", &openai.Error{StatusCode: http.StatusTooManyRequests}, ErrTypeRateLimit},
		{"unauthorized", &openai.Error{StatusCode: http.StatusUnauthorized}, ErrTypeAuth},
		{"forbidden", &openai.Error{StatusCode: http.StatusForbidden}, ErrTypeAuth},
		{"server error", &openai.Error{StatusCode: http.StatusInternalServerError}, ErrTypeAPI},
		{"transport", errors.New("connection refused"), ErrTypeTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, _ := classifyCompletionError(ctx, tt.err)
			if gotType != tt.wantType {
				t.Errorf("got %s, want %s", gotType, tt.wantType)
			}
		})
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	gotType, _ := classifyCompletionError(cancelled, errors.New("request aborted"))
	if gotType != ErrTypeCancelled {
		t.Errorf("got %s, want %s", gotType, ErrTypeCancelled)
	}
}

func TestIsTransportError(t *testing.T) {
	if isTransportError(&openai.Error{StatusCode: 500}) {
		t.Error("API errors must not be retried")
	}
	if isTransportError(context.Canceled) {
		t.Error("cancellation must not be retried")
	}
	if !isTransportError(errors.New("dial tcp: connection refused")) {
		t.Error("network errors should be retried")
	}
}

func TestMockCompleter(t *testing.T) {
	m := NewMockCompleter("first", "second")

	res, err := m.Complete(context.Background(), &CompletionRequest{Prompt: "a"})
	if err != nil || !res.Success || res.Content != "first" {
		t.Fatalf("unexpected: %+v, err=%v", res, err)
	}
	res, _ = m.Complete(context.Background(), &CompletionRequest{Prompt: "b"})
	if res.Content != "second" {
		t.Errorf("got %q", res.Content)
	}
	// Queue exhausted: last response repeats.
	res, _ = m.Complete(context.Background(), &CompletionRequest{Prompt: "c"})
	if res.Content != "second" {
		t.Errorf("got %q", res.Content)
	}
	if m.CallCount() != 3 {
		t.Errorf("call count: got %d", m.CallCount())
	}
	if m.Call(0).Prompt != "a" {
		t.Errorf("recorded call mismatch")
	}
}

func TestMockCompleter_FailAfter(t *testing.T) {
	m := NewMockCompleter("ok")
	m.FailAfter = 1

	if _, err := m.Complete(context.Background(), &CompletionRequest{Prompt: "x"}); err != nil {
		t.Fatalf("first call should succeed: %v", err)
	}
	res, err := m.Complete(context.Background(), &CompletionRequest{Prompt: "y"})
	if err == nil || res.Success {
		t.Error("second call should fail")
	}
	if res.ErrorType != ErrTypeAPI {
		t.Errorf("default error type: got %s", res.ErrorType)
	}
}
