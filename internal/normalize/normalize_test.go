package normalize

import (
	"testing"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(true, "X", 4, nil)
}

func TestDate(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name  string
		input any
		want  string
		ok    bool
	}{
		{"iso passthrough", "2025-01-15", "2025-01-15", true},
		{"dd-mmm-yyyy", "15-Jan-2025", "2025-01-15", true},
		{"dd/mm/yyyy", "15/01/2025", "2025-01-15", true},
		{"mm/dd/yyyy fallback", "01/15/2025", "2025-01-15", true},
		{"yyyy/mm/dd", "2025/01/15", "2025-01-15", true},
		{"dotted", "15.01.2025", "2025-01-15", true},
		{"whitespace trimmed", "  2025-01-15  ", "2025-01-15", true},
		{"single digit slashes", "1/5/2024", "2024-05-01", true},
		{"single digit iso", "2024-1-5", "2024-01-05", true},
		{"abbreviated month", "Jan 5, 2024", "2024-01-05", true},
		{"full month", "5 January 2024", "2024-01-05", true},
		{"month no comma", "Jan 5 2024", "2024-01-05", true},
		{"garbage", "not a date", "", false},
		{"empty", "", "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Date(tt.input, "")
			if ok != tt.ok || got != tt.want {
				t.Errorf("Date(%v) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDate_Idempotent(t *testing.T) {
	n := newTestNormalizer()
	first, ok := n.Date("15/01/2025", "")
	if !ok {
		t.Fatal("first normalization failed")
	}
	second, ok := n.Date(first, "")
	if !ok || second != first {
		t.Errorf("not idempotent: %q -> %q", first, second)
	}
}

func TestDate_Hint(t *testing.T) {
	n := newTestNormalizer()

	// A month-first hint overrides the day-first default for padded
	// slash dates.
	got, ok := n.Date("01/05/2025", "01/02/2006")
	if !ok || got != "2025-01-05" {
		t.Errorf("hinted: got (%q, %v), want (2025-01-05, true)", got, ok)
	}
	got, ok = n.Date("01/05/2025", "")
	if !ok || got != "2025-05-01" {
		t.Errorf("unhinted: got (%q, %v), want (2025-05-01, true)", got, ok)
	}

	// A hint that does not match falls through to the probes.
	got, ok = n.Date("2025-01-15", "01/02/2006")
	if !ok || got != "2025-01-15" {
		t.Errorf("mismatched hint: got (%q, %v), want (2025-01-15, true)", got, ok)
	}
}

func TestAmount(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name         string
		input        any
		currency     string
		wantValue    float64
		wantCurrency string
	}{
		{"float passthrough", 1234.56, "", 1234.56, "USD"},
		{"int passthrough", 500, "BDT", 500, "BDT"},
		{"comma separated", "1,234.56", "", 1234.56, "USD"},
		{"dollar symbol", "$1,234.56", "", 1234.56, "USD"},
		{"taka symbol", "৳5,000.00", "", 5000, "BDT"},
		{"euro symbol", "€99.50", "", 99.50, "EUR"},
		{"trailing code", "100.50 BDT", "", 100.50, "BDT"},
		{"negative", "-250.00", "", -250, "USD"},
		{"embedded numeric", "approx 42.5 total", "", 42.5, "USD"},
		{"unparseable", "no numbers here", "", 0, "USD"},
		{"nil", nil, "", 0, "USD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Amount(tt.input, tt.currency)
			if got.Value != tt.wantValue {
				t.Errorf("value: got %v, want %v", got.Value, tt.wantValue)
			}
			if got.Currency != tt.wantCurrency {
				t.Errorf("currency: got %s, want %s", got.Currency, tt.wantCurrency)
			}
		})
	}
}

func TestDetectCurrency(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		text string
		want string
	}{
		{"All amounts in BDT", "BDT"},
		{"Total: $45.00", "USD"},
		{"Montant: €12", "EUR"},
		{"no currency here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := n.DetectCurrency(tt.text); got != tt.want {
			t.Errorf("DetectCurrency(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestMaskAccountNumber(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"standard", "1234567890", "XXXXXX7890"},
		{"dashes stripped", "1234-5678-90", "XXXXXX7890"},
		{"spaces stripped", "1234 5678 90", "XXXXXX7890"},
		{"short keeps last char", "123", "XX3"},
		{"exactly showLast", "1234", "XXX4"},
		{"nil", nil, ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.MaskAccountNumber(tt.input, 4); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskPIIField(t *testing.T) {
	n := newTestNormalizer()

	if got := n.MaskPIIField("account_number", "9876543210"); got != "XXXXXX3210" {
		t.Errorf("account number: got %v", got)
	}
	if got := n.MaskPIIField("tax_id", "ABCDE12345"); got != "XXXXXX2345" {
		t.Errorf("tax id: got %v", got)
	}
	// Non-PII fields pass through untouched.
	if got := n.MaskPIIField("description", "Salary Credit"); got != "Salary Credit" {
		t.Errorf("description: got %v", got)
	}
	// Short PII values are left alone rather than fully masked.
	if got := n.MaskPIIField("tax_id", "123"); got != "123" {
		t.Errorf("short pii: got %v", got)
	}
	// Numeric leaves under PII-looking keys are amounts, not identifiers.
	if got := n.MaskPIIField("credit", 2500.00); got != 2500.00 {
		t.Errorf("numeric credit masked: got %v", got)
	}

	off := NewNormalizer(false, "X", 4, nil)
	if got := off.MaskPIIField("account_number", "9876543210"); got != "9876543210" {
		t.Errorf("masking disabled: got %v", got)
	}
}

func TestTree(t *testing.T) {
	n := newTestNormalizer()

	input := map[string]any{
		"account": map[string]any{
			"account_number": map[string]any{"value": "1234567890", "confidence": 0.9},
			"account_holder": map[string]any{"value": "Jane Doe", "confidence": 0.88},
		},
		"period": map[string]any{
			"start_date": map[string]any{"value": "01/01/2025", "confidence": 0.95},
			"end_date":   map[string]any{"value": "31/01/2025", "confidence": 0.94},
		},
		"bank": map[string]any{
			"currency": map[string]any{"value": "BDT", "confidence": 0.99},
		},
		"balances": map[string]any{
			"opening_balance": map[string]any{"value": "17,500.00", "confidence": 0.95},
		},
		"transactions": []any{
			map[string]any{
				"date":  map[string]any{"value": "02/01/2025", "confidence": 0.98},
				"debit": map[string]any{"value": "2,500.00", "confidence": 0.98},
			},
		},
	}

	out := n.Tree(input)

	leaf := func(path ...string) map[string]any {
		cur := any(out)
		for _, p := range path {
			cur = cur.(map[string]any)[p]
		}
		return cur.(map[string]any)
	}

	if got := leaf("period", "start_date")["value"]; got != "2025-01-01" {
		t.Errorf("start_date: got %v", got)
	}
	if got := leaf("period", "end_date")["value"]; got != "2025-01-31" {
		t.Errorf("end_date: got %v", got)
	}

	opening := leaf("balances", "opening_balance")
	if opening["value"] != 17500.00 {
		t.Errorf("opening balance: got %v", opening["value"])
	}
	// Document currency (BDT from the bank group) is attached to amounts.
	if opening["currency"] != "BDT" {
		t.Errorf("opening currency: got %v", opening["currency"])
	}

	if got := leaf("account", "account_number")["value"]; got != "XXXXXX7890" {
		t.Errorf("account number not masked: got %v", got)
	}
	// "account_holder" matches the account indicator, so the name is
	// masked to its last-N characters.
	if got := leaf("account", "account_holder")["value"]; got != "XXXX Doe" {
		t.Errorf("holder masking: got %v", got)
	}

	txn := out["transactions"].([]any)[0].(map[string]any)
	if got := txn["date"].(map[string]any)["value"]; got != "2025-01-02" {
		t.Errorf("txn date: got %v", got)
	}
	debit := txn["debit"].(map[string]any)
	if debit["value"] != 2500.00 || debit["currency"] != "BDT" {
		t.Errorf("txn debit: got %v %v", debit["value"], debit["currency"])
	}

	// Confidence scores survive normalization.
	if got := leaf("period", "start_date")["confidence"]; got != 0.95 {
		t.Errorf("confidence dropped: got %v", got)
	}

	// Input not mutated.
	orig := input["account"].(map[string]any)["account_number"].(map[string]any)
	if orig["value"] != "1234567890" {
		t.Errorf("input mutated: %v", orig["value"])
	}
}

func TestTree_Idempotent(t *testing.T) {
	n := newTestNormalizer()

	input := map[string]any{
		"period": map[string]any{
			"start_date": map[string]any{"value": "15/01/2025", "confidence": 0.9},
		},
		"balances": map[string]any{
			"closing_balance": map[string]any{"value": "15,000.00", "confidence": 0.9},
		},
	}

	once := n.Tree(input)
	twice := n.Tree(once)

	d1 := once["period"].(map[string]any)["start_date"].(map[string]any)["value"]
	d2 := twice["period"].(map[string]any)["start_date"].(map[string]any)["value"]
	if d1 != d2 {
		t.Errorf("dates not idempotent: %v vs %v", d1, d2)
	}
	b1 := once["balances"].(map[string]any)["closing_balance"].(map[string]any)["value"]
	b2 := twice["balances"].(map[string]any)["closing_balance"].(map[string]any)["value"]
	if b1 != b2 {
		t.Errorf("amounts not idempotent: %v vs %v", b1, b2)
	}
}
