package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const OlmOCRName = "olmocr"

// OlmOCRConfig configures the OCR service client.
type OlmOCRConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OlmOCRClient implements OCRReader against the olmOCR HTTP service.
type OlmOCRClient struct {
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

type ocrRequest struct {
	Image          string `json:"image"`
	PreserveLayout bool   `json:"preserve_layout"`
	DetectTables   bool   `json:"detect_tables"`
	Language       string `json:"language"`
}

type ocrResponse struct {
	Text string `json:"text"`
}

// NewOlmOCRClient creates an OCR client from config.
func NewOlmOCRClient(cfg OlmOCRConfig) *OlmOCRClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OlmOCRClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider identifier.
func (c *OlmOCRClient) Name() string {
	return OlmOCRName
}

// Ready probes the service health endpoint.
func (c *OlmOCRClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("OCR service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OCR service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Extract OCRs a single page image. Transport failures are retried with
// backoff; on exhaustion the envelope carries Success=false.
func (c *OlmOCRClient) Extract(ctx context.Context, imagePath string) (*OCRResult, error) {
	start := time.Now()
	result := &OCRResult{}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to read image: %v", err)
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("failed to read image: %w", err)
	}

	body, err := json.Marshal(ocrRequest{
		Image:          base64.StdEncoding.EncodeToString(data),
		PreserveLayout: true,
		DetectTables:   true,
		Language:       "en",
	})
	if err != nil {
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}

	var text string
	attempts := 0
	err = retry.Do(
		func() error {
			attempts++
			var callErr error
			text, callErr = c.doExtract(ctx, body)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	result.RetryCount = attempts - 1
	result.ExecutionTime = time.Since(start)

	if err != nil {
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("OCR failed for %s: %w", filepath.Base(imagePath), err)
	}

	result.Success = true
	result.Text = text
	return result, nil
}

func (c *OlmOCRClient) doExtract(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR service returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed ocrResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode OCR response: %w", err)
	}
	return parsed.Text, nil
}

// ExtractAll OCRs pages in order. A failed page contributes an empty
// string so downstream stages keep a stable page count.
func (c *OlmOCRClient) ExtractAll(ctx context.Context, imagePaths []string) []string {
	texts := make([]string, len(imagePaths))
	for i, path := range imagePaths {
		res, err := c.Extract(ctx, path)
		if err != nil {
			c.logger.Warn("OCR failed for page, substituting empty text",
				"page", i+1, "image", filepath.Base(path), "error", err)
			continue
		}
		texts[i] = res.Text
	}
	return texts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ OCRReader = (*OlmOCRClient)(nil)
