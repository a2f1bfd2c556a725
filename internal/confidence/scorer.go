// Package confidence scores extracted fields by blending model-reported
// confidence with rule-based heuristics.
package confidence

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default blend: 60% heuristic, 40% model.
const (
	DefaultHeuristicWeight = 0.6
	DefaultModelWeight     = 0.4
	DefaultThreshold       = 0.70
)

var (
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	looseDateRe   = regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`)
	numericishRe  = regexp.MustCompile(`^[\d,.\s$€£¥]+$`)
	emailRe       = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	accountRe     = regexp.MustCompile(`^[A-Z0-9\s-]+$`)
	phoneStripRe  = regexp.MustCompile(`[\s\-()]`)
	phoneRe       = regexp.MustCompile(`^\+?\d{10,15}$`)
	phoneDigitsRe = regexp.MustCompile(`\d{10,}`)
)

// confidenceCurrencies is the short list accepted for full currency
// confidence (narrower than the normalizer's detection list).
var confidenceCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true,
	"INR": true, "BDT": true, "AUD": true, "CAD": true,
}

// Context carries cross-field hints for consistency checks.
type Context struct {
	// DocumentCurrency is the currency detected for the whole document.
	DocumentCurrency string
	// PreviousDate is the prior transaction date (ISO) for chronology.
	PreviousDate string
}

// Score is the result of scoring a single field.
type Score struct {
	Confidence          float64  `json:"confidence"`
	HeuristicConfidence float64  `json:"heuristic_confidence"`
	ModelConfidence     *float64 `json:"model_confidence"`
	NeedsReview         bool     `json:"needs_review"`
	Reasons             []string `json:"reasons"`
}

// FieldScore pairs a field path with its confidence for aggregation.
type FieldScore struct {
	FieldPath  string  `json:"field_path"`
	Confidence float64 `json:"confidence"`
}

// Scorer blends heuristic and model confidence.
type Scorer struct {
	heuristicWeight float64
	modelWeight     float64
	threshold       float64
	logger          *slog.Logger
}

// NewScorer creates a scorer. Zero weights take the defaults; weights
// that do not sum to 1 are normalized.
func NewScorer(heuristicWeight, modelWeight, threshold float64, logger *slog.Logger) *Scorer {
	if heuristicWeight == 0 {
		heuristicWeight = DefaultHeuristicWeight
	}
	if modelWeight == 0 {
		modelWeight = DefaultModelWeight
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	total := heuristicWeight + modelWeight
	if total > 0 && (total < 0.99 || total > 1.01) {
		logger.Warn("confidence weights do not sum to 1, normalizing", "total", total)
		heuristicWeight /= total
		modelWeight /= total
	}

	return &Scorer{
		heuristicWeight: heuristicWeight,
		modelWeight:     modelWeight,
		threshold:       threshold,
		logger:          logger,
	}
}

// Threshold returns the review threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Field scores a single field. modelConfidence may be nil when the
// model did not report one, in which case the heuristic stands alone.
func (s *Scorer) Field(fieldName string, value any, fieldType string, modelConfidence *float64, ctx *Context) Score {
	heuristic, reasons := s.heuristic(fieldName, value, fieldType, ctx)

	result := Score{
		HeuristicConfidence: heuristic,
		Reasons:             reasons,
	}

	if modelConfidence != nil {
		mc := clamp(*modelConfidence)
		result.ModelConfidence = &mc
		result.Confidence = clamp(s.heuristicWeight*heuristic + s.modelWeight*mc)
		result.Reasons = append(result.Reasons, fmt.Sprintf("Model confidence: %.2f", mc))
	} else {
		result.Confidence = heuristic
	}

	result.NeedsReview = result.Confidence < s.threshold
	if result.NeedsReview {
		result.Reasons = append(result.Reasons, fmt.Sprintf("Below threshold (%.2f)", s.threshold))
	}
	return result
}

// Overall computes the document confidence as the (optionally
// weighted) mean of field confidences. Empty input yields 0.
func (s *Scorer) Overall(fields []FieldScore, weights map[string]float64) float64 {
	if len(fields) == 0 {
		return 0
	}

	if weights == nil {
		sum := 0.0
		for _, f := range fields {
			sum += f.Confidence
		}
		return sum / float64(len(fields))
	}

	weightedSum := 0.0
	totalWeight := 0.0
	for _, f := range fields {
		w, ok := weights[f.FieldPath]
		if !ok {
			w = 1.0
		}
		weightedSum += f.Confidence * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// heuristic combines type validity (x0.4, or x0.3 for plain strings),
// field-specific rules (x0.3), and context consistency (x0.3).
func (s *Scorer) heuristic(fieldName string, value any, fieldType string, ctx *Context) (float64, []string) {
	if value == nil {
		return 0, []string{"Field is empty or null"}
	}
	if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
		return 0, []string{"Field is empty or null"}
	}

	var reasons []string
	conf := 0.0

	switch fieldType {
	case "date":
		c, reason := validateDate(value)
		conf += c * 0.4
		reasons = append(reasons, reason)
	case "number", "amount":
		c, reason := validateNumber(value)
		conf += c * 0.4
		reasons = append(reasons, reason)
	case "email":
		c, reason := validateEmail(value)
		conf += c * 0.4
		reasons = append(reasons, reason)
	case "string":
		c, reason := validateString(value)
		conf += c * 0.3
		reasons = append(reasons, reason)
	}

	c, reason := validateFieldSpecific(fieldName, value)
	conf += c * 0.3
	if reason != "" {
		reasons = append(reasons, reason)
	}

	c, reason = checkConsistency(fieldName, value, ctx)
	conf += c * 0.3
	if reason != "" {
		reasons = append(reasons, reason)
	}

	return clamp(conf), reasons
}

func validateDate(value any) (float64, string) {
	str, ok := value.(string)
	if !ok {
		return 0.3, "Date is not a string"
	}

	if isoDateRe.MatchString(str) {
		if _, err := time.Parse("2006-01-02", str); err == nil {
			return 1.0, "Valid ISO 8601 date format"
		}
		return 0.5, "Date format looks correct but invalid date"
	}

	for _, layout := range []string{"02-Jan-2006", "02/01/2006", "01/02/2006"} {
		if _, err := time.Parse(layout, str); err == nil {
			return 0.7, "Valid date in format " + layout
		}
	}

	if looseDateRe.MatchString(str) {
		return 0.4, "Looks like a date but format unclear"
	}
	return 0.2, "Does not appear to be a valid date"
}

func validateNumber(value any) (float64, string) {
	switch v := value.(type) {
	case int, int64, float32, float64:
		return 1.0, "Valid numeric type"
	case string:
		cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(v)
		if _, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return 0.9, "Valid numeric string"
		}
		if numericishRe.MatchString(v) {
			return 0.6, "Looks numeric but parsing failed"
		}
	}
	return 0.2, "Does not appear to be a number"
}

func validateEmail(value any) (float64, string) {
	str, ok := value.(string)
	if !ok {
		return 0.0, "Email is not a string"
	}
	if emailRe.MatchString(str) {
		return 1.0, "Valid email format"
	}
	if strings.Contains(str, "@") && strings.Contains(str, ".") {
		return 0.5, "Looks like email but format invalid"
	}
	return 0.1, "Does not appear to be an email"
}

func validateString(value any) (float64, string) {
	str, ok := value.(string)
	if !ok {
		return 0.5, "Not a string type"
	}
	if strings.TrimSpace(str) != "" {
		return 0.8, "Non-empty string"
	}
	return 0.3, "Empty or whitespace-only string"
}

func validateFieldSpecific(fieldName string, value any) (float64, string) {
	lower := strings.ToLower(fieldName)

	if strings.Contains(lower, "account") && strings.Contains(lower, "number") {
		if str, ok := value.(string); ok {
			if accountRe.MatchString(strings.ToUpper(str)) {
				length := len(strings.NewReplacer(" ", "", "-", "").Replace(str))
				if length >= 8 && length <= 20 {
					return 0.9, "Valid account number format"
				}
				return 0.6, "Account number length unusual"
			}
		}
		return 0.4, "Account number format invalid"
	}

	if strings.Contains(lower, "currency") {
		if str, ok := value.(string); ok {
			if confidenceCurrencies[strings.ToUpper(str)] {
				return 1.0, "Valid currency code"
			}
			if len(str) == 3 && isAlpha(str) {
				return 0.7, "Looks like currency code"
			}
		}
		return 0.3, "Invalid currency format"
	}

	if strings.Contains(lower, "phone") {
		if str, ok := value.(string); ok {
			cleaned := phoneStripRe.ReplaceAllString(str, "")
			if phoneRe.MatchString(cleaned) {
				return 0.9, "Valid phone number format"
			}
			if phoneDigitsRe.MatchString(str) {
				return 0.6, "Contains digits but format unclear"
			}
		}
		return 0.3, "Invalid phone number format"
	}

	return 0.5, "No specific validation rules for this field"
}

func checkConsistency(fieldName string, value any, ctx *Context) (float64, string) {
	if ctx == nil {
		return 0.5, "No context for consistency check"
	}

	lower := strings.ToLower(fieldName)

	if strings.Contains(lower, "currency") && ctx.DocumentCurrency != "" {
		if strings.EqualFold(fmt.Sprintf("%v", value), ctx.DocumentCurrency) {
			return 0.8, "Currency matches document currency"
		}
		return 0.4, "Currency mismatch with document"
	}

	if strings.Contains(lower, "date") && ctx.PreviousDate != "" {
		current, err1 := time.Parse("2006-01-02", fmt.Sprintf("%v", value))
		previous, err2 := time.Parse("2006-01-02", ctx.PreviousDate)
		if err1 == nil && err2 == nil {
			if !current.Before(previous) {
				return 0.8, "Date is chronologically consistent"
			}
			return 0.5, "Date appears out of chronological order"
		}
	}

	return 0.5, "No consistency issues detected"
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return s != ""
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
