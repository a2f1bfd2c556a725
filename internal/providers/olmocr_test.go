package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeTestImage(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOlmOCR_Extract(t *testing.T) {
	var gotReq ocrRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(ocrResponse{Text: "ACME BANK\nStatement Period: Jan 2024"})
	}))
	defer srv.Close()

	img := writeTestImage(t, "page_0001.png", "fake png bytes")
	client := NewOlmOCRClient(OlmOCRConfig{BaseURL: srv.URL})

	res, err := client.Extract(context.Background(), img)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !res.Success {
		t.Error("expected Success=true")
	}
	if res.Text != "ACME BANK\nStatement Period: Jan 2024" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if res.RetryCount != 0 {
		t.Errorf("expected no retries, got %d", res.RetryCount)
	}

	if gotReq.Image != base64.StdEncoding.EncodeToString([]byte("fake png bytes")) {
		t.Error("image not base64-encoded correctly")
	}
	if !gotReq.PreserveLayout || !gotReq.DetectTables {
		t.Error("expected preserve_layout and detect_tables to be set")
	}
	if gotReq.Language != "en" {
		t.Errorf("expected language en, got %q", gotReq.Language)
	}
}

func TestOlmOCR_ExtractRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ocrResponse{Text: "recovered"})
	}))
	defer srv.Close()

	img := writeTestImage(t, "p.png", "png")
	client := NewOlmOCRClient(OlmOCRConfig{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})

	res, err := client.Extract(context.Background(), img)
	if err != nil {
		t.Fatalf("Extract failed after retries: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if res.RetryCount != 2 {
		t.Errorf("expected 2 retries, got %d", res.RetryCount)
	}
}

func TestOlmOCR_ExtractExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	img := writeTestImage(t, "p.png", "png")
	client := NewOlmOCRClient(OlmOCRConfig{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})

	res, err := client.Extract(context.Background(), img)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if res.Success {
		t.Error("expected Success=false")
	}
	if res.ErrorMessage == "" {
		t.Error("expected error message in envelope")
	}
}

func TestOlmOCR_ExtractAllSubstitutesEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ocrRequest
		json.NewDecoder(r.Body).Decode(&req)
		data, _ := base64.StdEncoding.DecodeString(req.Image)
		if string(data) == "bad page" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ocrResponse{Text: "page text"})
	}))
	defer srv.Close()

	good1 := writeTestImage(t, "p1.png", "good")
	bad := writeTestImage(t, "p2.png", "bad page")
	good2 := writeTestImage(t, "p3.png", "also good")

	client := NewOlmOCRClient(OlmOCRConfig{
		BaseURL:    srv.URL,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})

	texts := client.ExtractAll(context.Background(), []string{good1, bad, good2})
	if len(texts) != 3 {
		t.Fatalf("expected stable page count 3, got %d", len(texts))
	}
	if texts[0] != "page text" || texts[2] != "page text" {
		t.Errorf("good pages lost: %q", texts)
	}
	if texts[1] != "" {
		t.Errorf("failed page should be empty string, got %q", texts[1])
	}
}

func TestOlmOCR_Ready(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	client := NewOlmOCRClient(OlmOCRConfig{BaseURL: srv.URL})
	if err := client.Ready(context.Background()); err != nil {
		t.Errorf("expected healthy: %v", err)
	}

	healthy = false
	if err := client.Ready(context.Background()); err == nil {
		t.Error("expected unhealthy error")
	}
}
