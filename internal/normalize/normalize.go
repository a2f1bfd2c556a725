// Package normalize converts extracted statement values into canonical
// forms: ISO 8601 dates, plain decimal amounts, ISO 4217 currency
// codes, and masked PII.
package normalize

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// currencySymbols maps symbols to ISO 4217 codes. Order matters:
// matching is first-hit, so "$" precedes the composite symbols.
var currencySymbols = []struct {
	Symbol string
	Code   string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"৳", "BDT"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"R$", "BRL"},
	{"₽", "RUB"},
	{"₨", "PKR"},
}

// CurrencyCodes are the ISO 4217 codes recognized during detection.
var CurrencyCodes = []string{
	"USD", "EUR", "GBP", "JPY", "CNY", "INR", "BDT", "AUD", "CAD",
	"BRL", "RUB", "PKR", "SGD", "HKD", "KRW", "MXN", "ZAR", "NZD",
}

// dateLayouts are probed in order; the first successful parse wins.
var dateLayouts = []struct {
	Pattern *regexp.Regexp
	Layout  string
}{
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02"},
	{regexp.MustCompile(`^\d{2}-\w{3}-\d{4}$`), "02-Jan-2006"},
	{regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`), "02/01/2006"},
	{regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`), "01/02/2006"},
	{regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`), "2006/01/02"},
	{regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`), "02.01.2006"},
}

// lenientLayouts are tried after the strict probes, without pattern
// gates, so single-digit and spelled-out dates still normalize.
// Day-first layouts come first to match the strict tie-break.
var lenientLayouts = []string{
	"2/1/2006",
	"1/2/2006",
	"2006-1-2",
	"2006/1/2",
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2.1.2006",
}

var (
	amountJunkRe   = regexp.MustCompile(`[,\s]`)
	numericPartRe  = regexp.MustCompile(`-?\d+\.?\d*`)
	accountStripRe = regexp.MustCompile(`[\s-]`)
	amountKeyRe    = regexp.MustCompile(`amount|price|total|balance|debit|credit`)
	piiIndicators  = []string{"account", "ssn", "social", "tax", "id", "passport", "credit", "card", "routing", "iban", "swift"}
)

// Amount is a normalized monetary value.
type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Original string  `json:"original"`
}

// Normalizer applies canonicalization and PII masking rules.
type Normalizer struct {
	maskPII  bool
	maskChar string
	showLast int
	logger   *slog.Logger
}

// NewNormalizer creates a normalizer. maskChar defaults to "X",
// showLast to 4.
func NewNormalizer(maskPII bool, maskChar string, showLast int, logger *slog.Logger) *Normalizer {
	if maskChar == "" {
		maskChar = "X"
	}
	if showLast <= 0 {
		showLast = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{maskPII: maskPII, maskChar: maskChar, showLast: showLast, logger: logger}
}

// Date normalizes a date value to YYYY-MM-DD. hint, when non-empty, is
// a Go reference layout tried before the built-in probes, so callers
// that know the document's format can resolve ambiguous slash dates.
// Returns false when the value cannot be interpreted as a date.
func (n *Normalizer) Date(value any, hint string) (string, bool) {
	if value == nil {
		return "", false
	}
	if t, ok := value.(time.Time); ok {
		return t.Format("2006-01-02"), true
	}

	s := strings.TrimSpace(fmt.Sprintf("%v", value))
	if s == "" {
		return "", false
	}

	if hint != "" {
		if t, err := time.Parse(hint, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}

	for _, probe := range dateLayouts {
		if !probe.Pattern.MatchString(s) {
			continue
		}
		if t, err := time.Parse(probe.Layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}

	for _, layout := range lenientLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}

	n.logger.Warn("could not normalize date", "value", s)
	return "", false
}

// Amount normalizes an amount value, stripping separators and currency
// markers. currency is the fallback code when nothing is detected.
func (n *Normalizer) Amount(value any, currency string) Amount {
	if currency == "" {
		currency = "USD"
	}
	result := Amount{Currency: currency}
	if value == nil {
		return result
	}
	result.Original = fmt.Sprintf("%v", value)

	switch v := value.(type) {
	case float64:
		result.Value = v
		return result
	case float32:
		result.Value = float64(v)
		return result
	case int:
		result.Value = float64(v)
		return result
	case int64:
		result.Value = float64(v)
		return result
	}

	s := strings.TrimSpace(result.Original)
	if s == "" {
		return result
	}

	for _, sym := range currencySymbols {
		if strings.Contains(s, sym.Symbol) {
			result.Currency = sym.Code
			s = strings.ReplaceAll(s, sym.Symbol, "")
			break
		}
	}
	for _, code := range CurrencyCodes {
		if strings.HasSuffix(strings.ToUpper(s), " "+code) {
			result.Currency = code
			s = strings.TrimSpace(s[:len(s)-len(code)-1])
			break
		}
	}

	cleaned := amountJunkRe.ReplaceAllString(s, "")
	if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
		result.Value = v
		return result
	}
	if m := numericPartRe.FindString(cleaned); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			result.Value = v
			return result
		}
	}
	n.logger.Warn("could not parse amount", "value", result.Original)
	return result
}

// DetectCurrency finds a currency code or symbol in free text.
func (n *Normalizer) DetectCurrency(text string) string {
	if text == "" {
		return ""
	}
	upper := strings.ToUpper(text)
	for _, code := range CurrencyCodes {
		if strings.Contains(upper, code) {
			return code
		}
	}
	for _, sym := range currencySymbols {
		if strings.Contains(text, sym.Symbol) {
			return sym.Code
		}
	}
	return ""
}

// MaskAccountNumber masks an account number keeping the last showLast
// characters (e.g. "XXXX1234"). Spaces and dashes are stripped first.
func (n *Normalizer) MaskAccountNumber(value any, showLast int) string {
	if value == nil {
		return ""
	}
	if showLast <= 0 {
		showLast = n.showLast
	}
	cleaned := accountStripRe.ReplaceAllString(strings.TrimSpace(fmt.Sprintf("%v", value)), "")
	if cleaned == "" {
		return ""
	}

	runes := []rune(cleaned)
	if len(runes) <= showLast {
		// Too short: keep only the final character visible.
		return strings.Repeat(n.maskChar, len(runes)-1) + string(runes[len(runes)-1])
	}
	return strings.Repeat(n.maskChar, len(runes)-showLast) + string(runes[len(runes)-showLast:])
}

// MaskPIIField masks value when the field name indicates PII. Account
// numbers get account-style masking; other PII keeps the last showLast
// characters. Only string values are masked: numeric leaves under keys
// like "credit" are amounts, not identifiers.
func (n *Normalizer) MaskPIIField(fieldName string, value any) any {
	if !n.maskPII || value == nil {
		return value
	}
	if _, ok := value.(string); !ok {
		return value
	}

	lower := strings.ToLower(fieldName)
	isPII := false
	for _, ind := range piiIndicators {
		if strings.Contains(lower, ind) {
			isPII = true
			break
		}
	}
	if !isPII {
		return value
	}

	if strings.Contains(lower, "account") && strings.Contains(lower, "number") {
		return n.MaskAccountNumber(value, n.showLast)
	}

	s := fmt.Sprintf("%v", value)
	runes := []rune(s)
	if len(runes) > n.showLast {
		return strings.Repeat(n.maskChar, len(runes)-n.showLast) + string(runes[len(runes)-n.showLast:])
	}
	return value
}

// Tree canonicalizes an entire extraction tree in place order:
// currency detection, then dates, then amounts, then PII masking.
// The input is not mutated.
func (n *Normalizer) Tree(data map[string]any) map[string]any {
	currency := n.documentCurrency(data)

	out := n.normalizeDates(data).(map[string]any)
	out = n.normalizeAmounts(out, currency).(map[string]any)
	if n.maskPII {
		out = n.applyMasking(out).(map[string]any)
	}
	return out
}

// documentCurrency searches the tree for a currency field holding a
// known code, falling back to a text scan of the whole tree.
func (n *Normalizer) documentCurrency(data any) string {
	if c := searchCurrency(data); c != "" {
		return c
	}
	return n.DetectCurrency(fmt.Sprintf("%v", data))
}

func searchCurrency(data any) string {
	switch v := data.(type) {
	case map[string]any:
		if raw, ok := v["currency"]; ok {
			value := raw
			if leaf, ok := raw.(map[string]any); ok {
				value = leaf["value"]
			}
			if value != nil {
				code := strings.ToUpper(fmt.Sprintf("%v", value))
				for _, known := range CurrencyCodes {
					if code == known {
						return code
					}
				}
			}
		}
		for _, child := range v {
			if c := searchCurrency(child); c != "" {
				return c
			}
		}
	case []any:
		for _, item := range v {
			if c := searchCurrency(item); c != "" {
				return c
			}
		}
	}
	return ""
}

func (n *Normalizer) normalizeDates(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			leaf, isLeaf := value.(map[string]any)
			if isLeaf {
				if raw, hasValue := leaf["value"]; hasValue && isDateField(key, raw) {
					if normalized, ok := n.Date(raw, ""); ok {
						out[key] = withValue(leaf, normalized)
					} else {
						out[key] = value
					}
					continue
				}
				out[key] = n.normalizeDates(value)
				continue
			}
			out[key] = n.normalizeDates(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = n.normalizeDates(item)
		}
		return out
	default:
		return data
	}
}

func isDateField(key string, value any) bool {
	if strings.Contains(strings.ToLower(key), "date") {
		return true
	}
	return strings.Contains(strings.ToLower(fmt.Sprintf("%v", value)), "date")
}

func (n *Normalizer) normalizeAmounts(data any, currency string) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			leaf, isLeaf := value.(map[string]any)
			if isLeaf {
				if raw, hasValue := leaf["value"]; hasValue && amountKeyRe.MatchString(strings.ToLower(key)) {
					amount := n.Amount(raw, currency)
					normalized := withValue(leaf, amount.Value)
					normalized["currency"] = amount.Currency
					out[key] = normalized
					continue
				}
				out[key] = n.normalizeAmounts(value, currency)
				continue
			}
			out[key] = n.normalizeAmounts(value, currency)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = n.normalizeAmounts(item, currency)
		}
		return out
	default:
		return data
	}
}

func (n *Normalizer) applyMasking(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if leaf, ok := value.(map[string]any); ok {
				if raw, hasValue := leaf["value"]; hasValue {
					out[key] = withValue(leaf, n.MaskPIIField(key, raw))
					continue
				}
				out[key] = n.applyMasking(value)
				continue
			}
			if list, ok := value.([]any); ok {
				masked := make([]any, len(list))
				for i, item := range list {
					masked[i] = n.applyMasking(item)
				}
				out[key] = masked
				continue
			}
			out[key] = n.MaskPIIField(key, value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = n.applyMasking(item)
		}
		return out
	default:
		return data
	}
}

// withValue copies a field leaf replacing its value.
func withValue(leaf map[string]any, value any) map[string]any {
	out := make(map[string]any, len(leaf)+1)
	for k, v := range leaf {
		out[k] = v
	}
	out["value"] = value
	return out
}
