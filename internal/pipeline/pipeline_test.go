package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/confidence"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/normalize"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/providers"
)

type fakeRasterizer struct {
	pages   []string
	err     error
	cleaned [][]string
}

func (f *fakeRasterizer) Rasterize(_ context.Context, _, _ string) ([]string, error) {
	return f.pages, f.err
}

func (f *fakeRasterizer) Cleanup(paths []string) {
	f.cleaned = append(f.cleaned, paths)
}

const extractionReply = `{
  "account": {
    "account_number": {"value": "1234567890", "confidence": 0.92},
    "account_holder": {"value": "Jane Doe", "confidence": 0.87}
  },
  "period": {
    "start_date": {"value": "2025-01-01", "confidence": 0.95},
    "end_date": {"value": "2025-01-31", "confidence": 0.94}
  },
  "bank": {
    "bank_name": {"value": "ACME Bank", "confidence": 0.98},
    "currency": {"value": "BDT", "confidence": 0.99}
  },
  "balances": {
    "opening_balance": {"value": 17500.00, "confidence": 0.95},
    "closing_balance": {"value": 15000.00, "confidence": 0.95},
    "total_debits": {"value": 5500.00, "confidence": 0.92},
    "total_credits": {"value": 3000.00, "confidence": 0.91}
  },
  "transactions": [
    {"date": {"value": "2025-01-02", "confidence": 0.98}, "description": {"value": "ATM Withdrawal", "confidence": 0.93}, "debit": {"value": 2500.00, "confidence": 0.98}},
    {"date": {"value": "2025-01-05", "confidence": 0.97}, "description": {"value": "Salary Credit", "confidence": 0.95}, "credit": {"value": 3000.00, "confidence": 0.97}},
    {"date": {"value": "2025-01-20", "confidence": 0.96}, "description": {"value": "Utility Bill", "confidence": 0.94}, "debit": {"value": 3000.00, "confidence": 0.96}}
  ]
}`

const normalizationReply = `{
  "normalized_data": ` + extractionReply + `,
  "validation_results": {
    "balance_verification": {"calculated_closing": 15000.00, "stated_closing": 15000.00, "matches": true, "confidence": 0.98},
    "date_validation": {"all_dates_valid": true, "chronological": true, "within_period": true, "confidence": 0.95},
    "amount_validation": {"all_amounts_valid": true, "running_balance_correct": true, "confidence": 0.93},
    "issues": [],
    "overall_confidence": 0.94
  }
}`

func newTestPipeline(rast Rasterizer, ocr providers.OCRReader, completer providers.TextCompleter) *Pipeline {
	return New(
		rast,
		ocr,
		completer,
		normalize.NewNormalizer(true, "X", 4, nil),
		confidence.NewScorer(0.6, 0.4, 0.70, nil),
		true,
		nil,
	)
}

func happyMocks() (*fakeRasterizer, *providers.MockOCRReader, *providers.MockCompleter) {
	rast := &fakeRasterizer{pages: []string{"/tmp/p1.png", "/tmp/p2.png"}}
	ocr := &providers.MockOCRReader{Texts: map[string]string{
		"/tmp/p1.png": "ACME BANK statement page one",
		"/tmp/p2.png": "transactions page two",
	}}
	completer := providers.NewMockCompleter(
		"ACME BANK\ncleaned statement text",
		extractionReply,
		normalizationReply,
	)
	return rast, ocr, completer
}

func TestProcess_HappyPath(t *testing.T) {
	rast, ocr, completer := happyMocks()
	p := newTestPipeline(rast, ocr, completer)

	res := p.Process(context.Background(), "/uploads/statement.pdf")

	if !res.Success {
		t.Fatalf("pipeline failed at %s: %s", res.FailedStage, res.Error)
	}
	if res.PageCount != 2 {
		t.Errorf("page count: got %d", res.PageCount)
	}
	if !strings.Contains(res.RawOCR, PageBreak) {
		t.Error("page break sentinel missing from combined OCR")
	}
	if res.CleanedText == "" {
		t.Error("cleaned text missing")
	}
	if res.OverallConfidence != 0.94 {
		t.Errorf("overall confidence: got %v", res.OverallConfidence)
	}
	if res.TotalTokens == 0 || res.PromptTokens == 0 {
		t.Errorf("tokens not accounted: %+v", res)
	}
	if res.ModelUsed != "mock-model" {
		t.Errorf("model used: got %s", res.ModelUsed)
	}

	// Normalized tree: account number masked, amounts canonical.
	account := res.Normalized["account"].(map[string]any)
	if got := account["account_number"].(map[string]any)["value"]; got != "XXXXXX7890" {
		t.Errorf("account number not masked: %v", got)
	}
	txns := res.Normalized["transactions"].([]any)
	if len(txns) != 3 {
		t.Errorf("transactions: got %d", len(txns))
	}

	// All six stages logged as completed.
	wantStages := []string{StageRasterize, StageOCR, StageCleanup, StageExtract, StageNormalize, StagePostNorm}
	if len(res.Logs) != len(wantStages) {
		t.Fatalf("logs: got %d, want %d", len(res.Logs), len(wantStages))
	}
	for i, want := range wantStages {
		if res.Logs[i].Step != want || res.Logs[i].Status != "completed" {
			t.Errorf("log %d: %s/%s, want %s/completed", i, res.Logs[i].Step, res.Logs[i].Status, want)
		}
	}

	// Temp images cleaned up.
	if len(rast.cleaned) != 1 {
		t.Errorf("cleanup calls: got %d", len(rast.cleaned))
	}

	// Three agent calls: cleanup, extract, normalize.
	if completer.CallCount() != 3 {
		t.Errorf("agent calls: got %d", completer.CallCount())
	}
}

func TestProcess_RasterizeFailure(t *testing.T) {
	rast := &fakeRasterizer{err: errors.New("pdftoppm not found")}
	p := newTestPipeline(rast, &providers.MockOCRReader{}, providers.NewMockCompleter())

	res := p.Process(context.Background(), "/uploads/bad.pdf")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStage != StageRasterize {
		t.Errorf("failed stage: got %s", res.FailedStage)
	}
}

func TestProcess_OCRAllPagesEmpty(t *testing.T) {
	rast := &fakeRasterizer{pages: []string{"/tmp/p1.png", "/tmp/p2.png"}}
	ocr := &providers.MockOCRReader{Fail: map[string]bool{
		"/tmp/p1.png": true,
		"/tmp/p2.png": true,
	}}
	p := newTestPipeline(rast, ocr, providers.NewMockCompleter())

	res := p.Process(context.Background(), "/uploads/blank.pdf")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStage != StageOCR {
		t.Errorf("failed stage: got %s", res.FailedStage)
	}
}

func TestProcess_OCRPartialFailure(t *testing.T) {
	rast := &fakeRasterizer{pages: []string{"/tmp/p1.png", "/tmp/p2.png"}}
	ocr := &providers.MockOCRReader{
		Texts: map[string]string{"/tmp/p1.png": "readable page"},
		Fail:  map[string]bool{"/tmp/p2.png": true},
	}
	completer := providers.NewMockCompleter("cleaned", extractionReply, normalizationReply)
	p := newTestPipeline(rast, ocr, completer)

	res := p.Process(context.Background(), "/uploads/partial.pdf")
	if !res.Success {
		t.Fatalf("partial OCR should still process: %s", res.Error)
	}
	// The empty page keeps its slot around the sentinel.
	if !strings.HasSuffix(res.RawOCR, PageBreak) {
		t.Error("empty second page should leave sentinel at end")
	}
}

func TestProcess_ExtractionReturnsProse(t *testing.T) {
	rast, ocr, _ := happyMocks()
	completer := providers.NewMockCompleter(
		"cleaned text",
		"I'm sorry, I could not find any structured data in this document.",
	)
	p := newTestPipeline(rast, ocr, completer)

	res := p.Process(context.Background(), "/uploads/odd.pdf")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStage != StageExtract {
		t.Errorf("failed stage: got %s", res.FailedStage)
	}
}

func TestProcess_ExtractionMissingCanonicalGroups(t *testing.T) {
	rast, ocr, _ := happyMocks()
	completer := providers.NewMockCompleter(
		"cleaned text",
		`{"chatter": "no canonical groups here"}`,
	)
	p := newTestPipeline(rast, ocr, completer)

	res := p.Process(context.Background(), "/uploads/odd.pdf")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStage != StageExtract {
		t.Errorf("failed stage: got %s", res.FailedStage)
	}
}

func TestProcess_NormalizationAgentFailureIsAdvisory(t *testing.T) {
	rast, ocr, _ := happyMocks()
	completer := providers.NewMockCompleter(
		"cleaned text",
		extractionReply,
		"no json in this reply",
	)
	p := newTestPipeline(rast, ocr, completer)

	res := p.Process(context.Background(), "/uploads/statement.pdf")
	if !res.Success {
		t.Fatalf("normalization failure should not fail the run: %s", res.Error)
	}

	// Default validation block.
	if issues, ok := res.Validation["issues"].([]any); !ok || len(issues) != 0 {
		t.Errorf("default issues: %v", res.Validation["issues"])
	}
	// Heuristic confidence takes over when the agent reported none.
	if res.OverallConfidence <= 0 {
		t.Errorf("heuristic overall confidence expected, got %v", res.OverallConfidence)
	}
	// Post-normalization still ran over the extracted tree.
	account := res.Normalized["account"].(map[string]any)
	if got := account["account_number"].(map[string]any)["value"]; got != "XXXXXX7890" {
		t.Errorf("postnorm skipped: %v", got)
	}
}

func TestProcess_NormalizationCompleterFailureFailsRun(t *testing.T) {
	rast, ocr, _ := happyMocks()
	completer := providers.NewMockCompleter(
		"cleaned text",
		extractionReply,
		normalizationReply,
	)
	// Cleanup and extraction succeed; the normalization call errors.
	completer.FailAfter = 2
	p := newTestPipeline(rast, ocr, completer)

	res := p.Process(context.Background(), "/uploads/statement.pdf")
	if res.Success {
		t.Fatal("expected failure when the normalization call errors")
	}
	if res.FailedStage != StageNormalize {
		t.Errorf("failed stage: got %s", res.FailedStage)
	}
	if res.Normalized != nil {
		t.Error("failed run should not carry a normalized tree")
	}
}

func TestProcess_NormalizationPartialReply(t *testing.T) {
	rast, ocr, _ := happyMocks()

	t.Run("normalized data without validation kept", func(t *testing.T) {
		reply := `{
		  "normalized_data": {
		    "bank": {"bank_name": {"value": "Normalized ACME Bank", "confidence": 0.99}},
		    "balances": {"closing_balance": {"value": 15000.00, "confidence": 0.95}}
		  }
		}`
		completer := providers.NewMockCompleter("cleaned text", extractionReply, reply)
		p := newTestPipeline(rast, ocr, completer)

		res := p.Process(context.Background(), "/uploads/statement.pdf")
		if !res.Success {
			t.Fatalf("expected success: %s", res.Error)
		}
		bank := res.Normalized["bank"].(map[string]any)
		if got := bank["bank_name"].(map[string]any)["value"]; got != "Normalized ACME Bank" {
			t.Errorf("agent's normalized data dropped: %v", got)
		}
		if issues, ok := res.Validation["issues"].([]any); !ok || len(issues) != 0 {
			t.Errorf("default validation block missing: %v", res.Validation)
		}
	})

	t.Run("validation without normalized data kept", func(t *testing.T) {
		reply := `{
		  "validation_results": {"issues": ["unreadable totals"], "overall_confidence": 0.7}
		}`
		completer := providers.NewMockCompleter("cleaned text", extractionReply, reply)
		p := newTestPipeline(rast, ocr, completer)

		res := p.Process(context.Background(), "/uploads/statement.pdf")
		if !res.Success {
			t.Fatalf("expected success: %s", res.Error)
		}
		// Extracted tree falls in for the missing half.
		account := res.Normalized["account"].(map[string]any)
		if got := account["account_number"].(map[string]any)["value"]; got != "XXXXXX7890" {
			t.Errorf("fallback tree not normalized: %v", got)
		}
		if res.OverallConfidence != 0.7 {
			t.Errorf("agent's validation dropped: %v", res.OverallConfidence)
		}
	})
}

func TestProcess_BalanceMismatchFlagged(t *testing.T) {
	mismatchReply := `{
	  "normalized_data": ` + extractionReply + `,
	  "validation_results": {
	    "balance_verification": {"calculated_closing": 130.00, "stated_closing": 140.00, "matches": false, "confidence": 0.6},
	    "issues": ["closing balance does not match opening + credits - debits"],
	    "overall_confidence": 0.55
	  }
	}`
	rast, ocr, _ := happyMocks()
	completer := providers.NewMockCompleter("cleaned text", extractionReply, mismatchReply)
	p := newTestPipeline(rast, ocr, completer)

	res := p.Process(context.Background(), "/uploads/drift.pdf")
	// Validation is advisory: the run still completes.
	if !res.Success {
		t.Fatalf("expected success: %s", res.Error)
	}
	bv := res.Validation["balance_verification"].(map[string]any)
	if bv["matches"] != false {
		t.Error("mismatch not flagged")
	}
	if issues := res.Validation["issues"].([]any); len(issues) == 0 {
		t.Error("issues list empty")
	}
	if res.OverallConfidence != 0.55 {
		t.Errorf("reduced confidence not carried: %v", res.OverallConfidence)
	}
}

func TestClassify(t *testing.T) {
	rast, ocr, _ := happyMocks()

	t.Run("valid", func(t *testing.T) {
		completer := providers.NewMockCompleter(
			`{"document_type": "bank_statement", "confidence": 0.95, "reasoning": "transaction table present"}`)
		p := newTestPipeline(rast, ocr, completer)

		c := p.Classify(context.Background(), "/tmp/p1.png")
		if c.DocumentType != "bank_statement" || c.Confidence != 0.95 {
			t.Errorf("got %+v", c)
		}
		if completer.Call(0).ImagePath != "/tmp/p1.png" {
			t.Error("image not attached to classification call")
		}
	})

	t.Run("unknown type degrades to generic", func(t *testing.T) {
		completer := providers.NewMockCompleter(`{"document_type": "payslip", "confidence": 0.9}`)
		p := newTestPipeline(rast, ocr, completer)

		c := p.Classify(context.Background(), "/tmp/p1.png")
		if c.DocumentType != "generic" || c.Confidence != 0 {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("completion failure degrades to generic", func(t *testing.T) {
		completer := providers.NewMockCompleter()
		completer.ShouldFail = true
		p := newTestPipeline(rast, ocr, completer)

		c := p.Classify(context.Background(), "/tmp/p1.png")
		if c.DocumentType != "generic" || c.Confidence != 0 {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("out of range confidence clamped", func(t *testing.T) {
		completer := providers.NewMockCompleter(`{"document_type": "invoice", "confidence": 1.7}`)
		p := newTestPipeline(rast, ocr, completer)

		c := p.Classify(context.Background(), "/tmp/p1.png")
		if c.Confidence != 1 {
			t.Errorf("got %v", c.Confidence)
		}
	})
}
