// Package pipeline orchestrates the multi-agent statement processing
// flow: rasterize -> ocr -> cleanup -> extract -> normalize -> postnorm.
// The pipeline is pure with respect to persistence; callers decide what
// to do with the result envelope.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/confidence"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/extract"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/normalize"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/pdf"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/prompts"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/providers"
)

// PageBreak joins per-page OCR text into a single document.
const PageBreak = "\n\n--- PAGE BREAK ---\n\n"

// Stage names as they appear in processing logs.
const (
	StageRasterize = "rasterize"
	StageOCR       = "ocr"
	StageCleanup   = "cleanup"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StagePostNorm  = "postnorm"
	StageClassify  = "classify"
)

// StageLog is one processing-log entry for a stage.
type StageLog struct {
	Step     string         `json:"step"`
	Status   string         `json:"status"` // completed | failed
	Message  string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is the complete outcome of a pipeline run.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// FailedStage names the stage that stopped the run.
	FailedStage string `json:"failed_stage,omitempty"`

	PageCount   int    `json:"page_count"`
	RawOCR      string `json:"raw_ocr,omitempty"`
	CleanedText string `json:"cleaned_text,omitempty"`

	Extracted  map[string]any `json:"extracted,omitempty"`
	Normalized map[string]any `json:"normalized,omitempty"`
	Validation map[string]any `json:"validation_results,omitempty"`

	OverallConfidence float64 `json:"overall_confidence"`

	ModelUsed        string        `json:"model_used,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Duration         time.Duration `json:"duration"`

	Logs []StageLog `json:"logs"`
}

// Classification labels a document's first page.
type Classification struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// Rasterizer renders a PDF into ordered page images. Satisfied by
// *pdf.Rasterizer; tests substitute fakes.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error)
	Cleanup(paths []string)
}

var _ Rasterizer = (*pdf.Rasterizer)(nil)

// Pipeline runs the agent stages over one PDF.
type Pipeline struct {
	rasterizer  Rasterizer
	ocr         providers.OCRReader
	runner      *extract.Runner
	normalizer  *normalize.Normalizer
	scorer      *confidence.Scorer
	cleanupTemp bool
	logger      *slog.Logger
}

// New creates a pipeline.
func New(
	rasterizer Rasterizer,
	ocr providers.OCRReader,
	completer providers.TextCompleter,
	normalizer *normalize.Normalizer,
	scorer *confidence.Scorer,
	cleanupTemp bool,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		rasterizer:  rasterizer,
		ocr:         ocr,
		runner:      extract.NewRunner(completer, logger),
		normalizer:  normalizer,
		scorer:      scorer,
		cleanupTemp: cleanupTemp,
		logger:      logger,
	}
}

// Process runs the full pipeline over pdfPath. Failures are reported in
// the result envelope, never panicked or half-returned.
func (p *Pipeline) Process(ctx context.Context, pdfPath string) *Result {
	start := time.Now()
	result := &Result{}
	defer func() { result.Duration = time.Since(start) }()

	p.logger.Info("pipeline started", "pdf", filepath.Base(pdfPath))

	// Stage 1: rasterize.
	stageStart := time.Now()
	imageDir := filepath.Join(os.TempDir(), "bankparse-pages-"+fmt.Sprint(start.UnixNano()))
	imagePaths, err := p.rasterizer.Rasterize(ctx, pdfPath, imageDir)
	if err != nil {
		p.fail(result, StageRasterize, err.Error(), stageStart)
		return result
	}
	if p.cleanupTemp {
		defer p.rasterizer.Cleanup(imagePaths)
	}
	result.PageCount = len(imagePaths)
	p.logStage(result, StageRasterize, stageStart, map[string]any{"pages": len(imagePaths)})

	// Stage 2: OCR. Per-page failures become empty strings; a document
	// with no text at all is a hard failure.
	stageStart = time.Now()
	texts := p.ocr.ExtractAll(ctx, imagePaths)
	combined := strings.Join(texts, PageBreak)
	if strings.TrimSpace(strings.ReplaceAll(combined, strings.TrimSpace(PageBreak), "")) == "" {
		p.fail(result, StageOCR, "OCR produced no text for any page", stageStart)
		return result
	}
	result.RawOCR = combined
	p.logStage(result, StageOCR, stageStart, map[string]any{
		"pages_processed":  len(texts),
		"total_characters": len(combined),
	})

	// Stage 3: cleanup agent.
	stageStart = time.Now()
	cleanup := p.runner.Run(ctx, extract.Stage{
		Name:        StageCleanup,
		BuildPrompt: func() string { return prompts.Cleanup(combined) },
		Shape:       extract.ShapeText,
	})
	p.account(result, cleanup)
	if !cleanup.Success {
		p.fail(result, StageCleanup, cleanup.Error, stageStart)
		return result
	}
	if strings.TrimSpace(cleanup.Text) == "" {
		p.fail(result, StageCleanup, "cleanup agent returned empty text", stageStart)
		return result
	}
	result.CleanedText = cleanup.Text
	p.logStage(result, StageCleanup, stageStart, stageMeta(cleanup))

	// Stage 4: extraction agent. The output must match the canonical
	// shape with at least one group.
	stageStart = time.Now()
	extraction := p.runner.Run(ctx, extract.Stage{
		Name:        StageExtract,
		BuildPrompt: func() string { return prompts.Extraction(cleanup.Text) },
		Shape:       extract.ShapeJSON,
	})
	p.account(result, extraction)
	if !extraction.Success {
		p.fail(result, StageExtract, extraction.Error, stageStart)
		return result
	}
	if err := extract.ValidateExtraction(extraction.Data); err != nil {
		p.fail(result, StageExtract, err.Error(), stageStart)
		return result
	}
	result.Extracted = extraction.Data
	p.logStage(result, StageExtract, stageStart, stageMeta(extraction))

	// Stage 5: normalization agent. A completer failure stops the run;
	// a live reply with unusable JSON degrades to the extracted tree,
	// defaulting only the missing halves.
	stageStart = time.Now()
	normStage := p.runner.Run(ctx, extract.Stage{
		Name:        StageNormalize,
		BuildPrompt: func() string { return prompts.Normalization(extraction.Data) },
		Shape:       extract.ShapeJSON,
	})
	p.account(result, normStage)
	if !normStage.Success && !normStage.ParseFailed {
		p.fail(result, StageNormalize, normStage.Error, stageStart)
		return result
	}
	normalized, validation := splitNormalization(normStage)
	degraded := normalized == nil || validation == nil
	if normalized == nil {
		normalized = extraction.Data
	}
	if validation == nil {
		validation = map[string]any{"overall_confidence": 0.0, "issues": []any{}}
	}
	if degraded {
		p.logStageStatus(result, StageNormalize, "failed",
			"normalization reply unusable, defaulting missing parts", stageStart, nil)
	} else {
		p.logStage(result, StageNormalize, stageStart, nil)
	}

	// Stage 6: deterministic post-normalization and scoring.
	stageStart = time.Now()
	result.Normalized = p.normalizer.Tree(normalized)
	result.Validation = validation
	result.OverallConfidence = p.overallConfidence(result.Normalized, validation)
	p.logStage(result, StagePostNorm, stageStart, map[string]any{
		"overall_confidence": result.OverallConfidence,
	})

	result.Success = true
	p.logger.Info("pipeline complete",
		"pdf", filepath.Base(pdfPath),
		"pages", result.PageCount,
		"tokens", result.TotalTokens,
		"confidence", result.OverallConfidence,
		"duration", time.Since(start))
	return result
}

// Classify labels the first page of the PDF. Best effort: any failure
// degrades to {generic, 0}.
func (p *Pipeline) Classify(ctx context.Context, imagePath string) Classification {
	fallback := Classification{DocumentType: "generic", Confidence: 0}

	res := p.runner.Run(ctx, extract.Stage{
		Name:        StageClassify,
		BuildPrompt: prompts.Classification,
		ImagePath:   imagePath,
		Shape:       extract.ShapeJSON,
	})
	if !res.Success {
		p.logger.Warn("classification failed, defaulting to generic", "error", res.Error)
		return fallback
	}

	docType, _ := res.Data["document_type"].(string)
	valid := false
	for _, known := range prompts.DocumentTypes {
		if docType == known {
			valid = true
			break
		}
	}
	if !valid {
		p.logger.Warn("classifier returned unknown document type", "type", docType)
		return fallback
	}

	conf, _ := res.Data["confidence"].(float64)
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	reasoning, _ := res.Data["reasoning"].(string)
	return Classification{DocumentType: docType, Confidence: conf, Reasoning: reasoning}
}

// splitNormalization pulls (normalized_data, validation_results) out
// of the normalization agent's reply. Either half may be nil; a reply
// that carries only one key still contributes what it has.
func splitNormalization(res *extract.StageResult) (map[string]any, map[string]any) {
	if !res.Success {
		return nil, nil
	}
	normalized, _ := res.Data["normalized_data"].(map[string]any)
	validation, _ := res.Data["validation_results"].(map[string]any)
	return normalized, validation
}

// overallConfidence prefers the validation agent's figure, falling back
// to the heuristic mean over all field leaves.
func (p *Pipeline) overallConfidence(normalized, validation map[string]any) float64 {
	if v, ok := validation["overall_confidence"].(float64); ok && v > 0 {
		return v
	}

	var fields []confidence.FieldScore
	collectFieldScores(normalized, "", &fields, p.scorer)
	return p.scorer.Overall(fields, nil)
}

// collectFieldScores walks the tree scoring every {value, confidence}
// leaf with the heuristic scorer.
func collectFieldScores(data any, path string, out *[]confidence.FieldScore, scorer *confidence.Scorer) {
	switch v := data.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if leaf, ok := child.(map[string]any); ok {
				if value, hasValue := leaf["value"]; hasValue {
					var modelConf *float64
					if c, ok := leaf["confidence"].(float64); ok {
						modelConf = &c
					}
					score := scorer.Field(key, value, fieldType(key, value), modelConf, nil)
					*out = append(*out, confidence.FieldScore{
						FieldPath:  childPath,
						Confidence: score.Confidence,
					})
					continue
				}
			}
			collectFieldScores(child, childPath, out, scorer)
		}
	case []any:
		for i, item := range v {
			collectFieldScores(item, fmt.Sprintf("%s[%d]", path, i), out, scorer)
		}
	}
}

// fieldType infers the scoring type from the field name and value.
func fieldType(key string, value any) string {
	lower := strings.ToLower(key)
	switch {
	case strings.Contains(lower, "date"):
		return "date"
	case strings.Contains(lower, "email"):
		return "email"
	default:
		switch value.(type) {
		case float64, int, int64:
			return "number"
		default:
			return "string"
		}
	}
}

func (p *Pipeline) fail(result *Result, stage, message string, stageStart time.Time) {
	result.Error = message
	result.FailedStage = stage
	p.logStageStatus(result, stage, "failed", message, stageStart, nil)
	p.logger.Error("pipeline stage failed", "stage", stage, "error", message)
}

func (p *Pipeline) logStage(result *Result, stage string, stageStart time.Time, meta map[string]any) {
	p.logStageStatus(result, stage, "completed", "", stageStart, meta)
}

func (p *Pipeline) logStageStatus(result *Result, stage, status, message string, stageStart time.Time, meta map[string]any) {
	result.Logs = append(result.Logs, StageLog{
		Step:     stage,
		Status:   status,
		Message:  message,
		Duration: time.Since(stageStart),
		Metadata: meta,
	})
}

// account folds stage token usage into the result totals.
func (p *Pipeline) account(result *Result, stage *extract.StageResult) {
	result.PromptTokens += stage.Metadata.Tokens.PromptTokens
	result.CompletionTokens += stage.Metadata.Tokens.CompletionTokens
	result.TotalTokens += stage.Metadata.Tokens.TotalTokens
	if stage.Metadata.Model != "" {
		result.ModelUsed = stage.Metadata.Model
	}
}

func stageMeta(stage *extract.StageResult) map[string]any {
	return map[string]any{
		"provider": stage.Metadata.Provider,
		"model":    stage.Metadata.Model,
		"attempts": stage.Metadata.Attempts,
		"tokens":   stage.Metadata.Tokens.TotalTokens,
	}
}
