package config

import "time"

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	OCR        OCRConfig        `mapstructure:"ocr" yaml:"ocr"`
	PDF        PDFConfig        `mapstructure:"pdf" yaml:"pdf"`
	PII        PIIConfig        `mapstructure:"pii" yaml:"pii"`
	Confidence ConfidenceConfig `mapstructure:"confidence" yaml:"confidence"`
	Jobs       JobsConfig       `mapstructure:"jobs" yaml:"jobs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        string   `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Driver is the database/sql driver name ("sqlite3").
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is the data source name (file path for SQLite).
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// StorageConfig holds blob store settings.
type StorageConfig struct {
	UploadDir         string   `mapstructure:"upload_dir" yaml:"upload_dir"`
	MaxUploadSize     int64    `mapstructure:"max_upload_size" yaml:"max_upload_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

// LLMConfig holds settings for the chat-completion provider.
// Any OpenAI-compatible endpoint works (Groq, OpenAI, a local gateway).
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// OCRConfig holds settings for the OCR service.
type OCRConfig struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// PDFConfig holds PDF rasterization settings.
type PDFConfig struct {
	DPI          int  `mapstructure:"dpi" yaml:"dpi"`
	CleanupTemp  bool `mapstructure:"cleanup_temp" yaml:"cleanup_temp"`
	MaxRenderers int  `mapstructure:"max_renderers" yaml:"max_renderers"`
}

// PIIConfig holds PII masking settings.
type PIIConfig struct {
	Mask     bool   `mapstructure:"mask" yaml:"mask"`
	MaskChar string `mapstructure:"mask_char" yaml:"mask_char"`
	ShowLast int    `mapstructure:"show_last" yaml:"show_last"`
}

// ConfidenceConfig holds confidence-scoring weights.
type ConfidenceConfig struct {
	Threshold       float64 `mapstructure:"threshold" yaml:"threshold"`
	HeuristicWeight float64 `mapstructure:"heuristic_weight" yaml:"heuristic_weight"`
	ModelWeight     float64 `mapstructure:"model_weight" yaml:"model_weight"`
}

// JobsConfig holds background worker settings.
type JobsConfig struct {
	// Workers bounds the number of pipelines running concurrently.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// QueueSize bounds the number of statements waiting for a worker.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
	// StaleAfter is the age beyond which a row stuck in "processing"
	// is swept to "failed" at startup.
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./bankparse.db",
		},
		Storage: StorageConfig{
			UploadDir:         "./uploads",
			MaxUploadSize:     50 * 1024 * 1024,
			AllowedExtensions: []string{".pdf"},
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.2-90b-vision-preview",
			APIKey:      "${GROQ_API_KEY}",
			Temperature: 0.1,
			MaxTokens:   8192,
			Timeout:     120 * time.Second,
			MaxRetries:  3,
			RetryDelay:  time.Second,
		},
		OCR: OCRConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    300 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		PDF: PDFConfig{
			DPI:          300,
			CleanupTemp:  true,
			MaxRenderers: 0, // 0 = NumCPU
		},
		PII: PIIConfig{
			Mask:     true,
			MaskChar: "X",
			ShowLast: 4,
		},
		Confidence: ConfidenceConfig{
			Threshold:       0.70,
			HeuristicWeight: 0.6,
			ModelWeight:     0.4,
		},
		Jobs: JobsConfig{
			Workers:    4,
			QueueSize:  100,
			StaleAfter: 30 * time.Minute,
		},
	}
}

// ResolveAPIKey returns the LLM API key with ${ENV_VAR} references expanded.
func (c *Config) ResolveAPIKey() string {
	return ResolveEnvVars(c.LLM.APIKey)
}
