package jobs

import (
	"strconv"
	"time"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/pipeline"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
)

// buildResult maps a successful pipeline run onto the records
// SaveResult persists. Field values come from the normalized tree;
// the raw account number comes from the pre-masking extraction.
func buildResult(res *pipeline.Result, cls pipeline.Classification) *store.Result {
	out := &store.Result{
		PageCount:             res.PageCount,
		DocumentType:          cls.DocumentType,
		ModelUsed:             res.ModelUsed,
		PromptTokens:          res.PromptTokens,
		CompletionTokens:      res.CompletionTokens,
		TotalTokens:           res.TotalTokens,
		ProcessingTimeSeconds: res.Duration.Seconds(),
	}
	if cls.DocumentType != "" {
		conf := cls.Confidence
		out.ClassificationConfidence = &conf
	}
	overall := res.OverallConfidence
	out.OverallConfidence = &overall

	if info := group(res.Normalized, "schema_info"); len(info) > 0 {
		out.SchemaInfo = store.JSONMap(info)
	}

	out.Customer = buildCustomer(res.Normalized, res.Extracted)
	out.Bank = buildBank(res.Normalized)
	out.Transactions = buildTransactions(res.Normalized)
	return out
}

func buildCustomer(normalized, extracted map[string]any) *store.Customer {
	account := group(normalized, "account")
	if account == nil {
		return nil
	}

	c := &store.Customer{ConfidenceScores: store.JSONMap{}}
	c.AccountHolderName = takeString(account, "account_holder", c.ConfidenceScores)
	c.AccountNumberMasked = takeString(account, "account_number", c.ConfidenceScores)
	c.AccountType = takeString(account, "account_type", c.ConfidenceScores)
	c.Address = takeString(account, "address", c.ConfidenceScores)
	c.Email = takeString(account, "email", c.ConfidenceScores)
	c.Phone = takeString(account, "phone", c.ConfidenceScores)
	c.CustomerID = takeString(account, "customer_id", c.ConfidenceScores)
	c.BranchCode = takeString(account, "branch_code", c.ConfidenceScores)

	// The normalized tree is masked; the raw number only survives in
	// the extraction output.
	if raw := group(extracted, "account"); raw != nil {
		c.AccountNumber = takeString(raw, "account_number", nil)
	}

	if len(c.ConfidenceScores) == 0 {
		c.ConfidenceScores = nil
	}
	return c
}

func buildBank(normalized map[string]any) *store.Bank {
	bank := group(normalized, "bank")
	period := group(normalized, "period")
	balances := group(normalized, "balances")
	if bank == nil && period == nil && balances == nil {
		return nil
	}

	b := &store.Bank{ConfidenceScores: store.JSONMap{}}
	b.BankName = takeString(bank, "bank_name", b.ConfidenceScores)
	b.BankCode = takeString(bank, "bank_code", b.ConfidenceScores)
	b.BranchName = takeString(bank, "branch_name", b.ConfidenceScores)
	b.BranchAddress = takeString(bank, "branch_address", b.ConfidenceScores)

	b.StatementDate = takeDate(period, "statement_date", b.ConfidenceScores)
	b.PeriodStartDate = takeDate(period, "start_date", b.ConfidenceScores)
	b.PeriodEndDate = takeDate(period, "end_date", b.ConfidenceScores)

	b.OpeningBalance = takeFloat(balances, "opening_balance", b.ConfidenceScores)
	b.ClosingBalance = takeFloat(balances, "closing_balance", b.ConfidenceScores)
	b.TotalDebits = takeFloat(balances, "total_debits", b.ConfidenceScores)
	b.TotalCredits = takeFloat(balances, "total_credits", b.ConfidenceScores)

	if cur := takeString(bank, "currency", nil); cur != nil {
		b.Currency = *cur
	} else if cur := leafCurrency(balances); cur != "" {
		b.Currency = cur
	}

	if len(b.ConfidenceScores) == 0 {
		b.ConfidenceScores = nil
	}
	return b
}

func buildTransactions(normalized map[string]any) []store.Transaction {
	rows, ok := normalized["transactions"].([]any)
	if !ok {
		return nil
	}

	var out []store.Transaction
	for _, row := range rows {
		fields, ok := row.(map[string]any)
		if !ok {
			continue
		}
		t := store.Transaction{
			RawData:          store.JSONMap(fields),
			ConfidenceScores: store.JSONMap{},
		}
		t.Date = takeDate(fields, "date", t.ConfidenceScores)
		t.Description = takeString(fields, "description", t.ConfidenceScores)
		t.Debit = takeFloat(fields, "debit", t.ConfidenceScores)
		t.Credit = takeFloat(fields, "credit", t.ConfidenceScores)
		t.Balance = takeFloat(fields, "balance", t.ConfidenceScores)
		t.Amount = takeFloat(fields, "amount", t.ConfidenceScores)
		t.ReferenceNumber = takeString(fields, "reference_number", t.ConfidenceScores)
		t.CheckNumber = takeString(fields, "check_number", t.ConfidenceScores)
		t.TransactionType = takeString(fields, "transaction_type", t.ConfidenceScores)

		if mean := meanConfidence(t.ConfidenceScores); mean != nil {
			t.Confidence = mean
		}
		if len(t.ConfidenceScores) == 0 {
			t.ConfidenceScores = nil
		}
		out = append(out, t)
	}
	return out
}

// group returns a named sub-object of the tree, or nil.
func group(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	g, _ := m[key].(map[string]any)
	return g
}

// leaf unpacks a {value, confidence} node.
func leaf(g map[string]any, key string) (any, *float64) {
	if g == nil {
		return nil, nil
	}
	node, ok := g[key].(map[string]any)
	if !ok {
		return nil, nil
	}
	var conf *float64
	if c, ok := toFloat(node["confidence"]); ok {
		conf = &c
	}
	return node["value"], conf
}

// takeString reads a string leaf, recording its confidence under key.
func takeString(g map[string]any, key string, scores store.JSONMap) *string {
	value, conf := leaf(g, key)
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}
	if scores != nil && conf != nil {
		scores[key] = *conf
	}
	return &s
}

// takeFloat reads a numeric leaf, recording its confidence under key.
func takeFloat(g map[string]any, key string, scores store.JSONMap) *float64 {
	value, conf := leaf(g, key)
	f, ok := toFloat(value)
	if !ok {
		return nil
	}
	if scores != nil && conf != nil {
		scores[key] = *conf
	}
	return &f
}

// takeDate reads an ISO date leaf, recording its confidence under key.
// Values that did not normalize to YYYY-MM-DD are dropped.
func takeDate(g map[string]any, key string, scores store.JSONMap) *time.Time {
	value, conf := leaf(g, key)
	s, ok := value.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	if scores != nil && conf != nil {
		scores[key] = *conf
	}
	return &t
}

// leafCurrency finds a currency annotation attached to any amount leaf.
func leafCurrency(g map[string]any) string {
	for _, v := range g {
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if cur, ok := node["currency"].(string); ok && cur != "" {
			return cur
		}
	}
	return ""
}

func meanConfidence(scores store.JSONMap) *float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, v := range scores {
		f, _ := toFloat(v)
		sum += f
	}
	mean := sum / float64(len(scores))
	return &mean
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
