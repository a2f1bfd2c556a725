package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLM.APIKey != "${GROQ_API_KEY}" {
		t.Error("expected LLM API key placeholder")
	}
	if cfg.LLM.Temperature != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 8192 {
		t.Errorf("expected max tokens 8192, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Storage.MaxUploadSize != 50*1024*1024 {
		t.Errorf("expected 50MB upload limit, got %d", cfg.Storage.MaxUploadSize)
	}
	if cfg.PDF.DPI != 300 {
		t.Errorf("expected 300 DPI, got %d", cfg.PDF.DPI)
	}
	if cfg.PII.MaskChar != "X" || cfg.PII.ShowLast != 4 {
		t.Errorf("unexpected PII defaults: %+v", cfg.PII)
	}
	if cfg.Confidence.Threshold != 0.70 {
		t.Errorf("expected threshold 0.70, got %v", cfg.Confidence.Threshold)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ResolveAPIKey(t *testing.T) {
	os.Setenv("TEST_GROQ_KEY", "gsk-key-123")
	defer os.Unsetenv("TEST_GROQ_KEY")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "${TEST_GROQ_KEY}"

	if got := cfg.ResolveAPIKey(); got != "gsk-key-123" {
		t.Errorf("expected gsk-key-123, got %s", got)
	}

	cfg.LLM.APIKey = "direct-key"
	if got := cfg.ResolveAPIKey(); got != "direct-key" {
		t.Errorf("expected direct-key, got %s", got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
llm:
  model: "test-model"
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.LLM.Model != "test-model" {
			t.Errorf("expected test-model, got %s", cfg.LLM.Model)
		}
	})
}

func TestManager_OnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("llm:\n  model: m\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 2 {
		t.Errorf("expected 2 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestWriteDefault(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("written config is empty")
	}
}
