// Package prompts builds the LLM prompts for each agent stage of the
// statement processing pipeline.
package prompts

import (
	"encoding/json"
	"fmt"
)

// DocumentTypes the classifier may return.
var DocumentTypes = []string{"bank_statement", "invoice", "receipt", "generic"}

// sampleExtraction is the worked example embedded in the extraction
// prompt. Every leaf is a {value, confidence} pair.
const sampleExtraction = `{
  "account": {
    "account_number": {"value": "XXXX1234", "confidence": 0.92},
    "account_holder": {"value": "John Doe", "confidence": 0.87},
    "account_type": {"value": "Savings", "confidence": 0.85}
  },
  "period": {
    "start_date": {"value": "2025-01-01", "confidence": 0.95},
    "end_date": {"value": "2025-01-31", "confidence": 0.94}
  },
  "bank": {
    "bank_name": {"value": "Example Bank", "confidence": 0.98},
    "branch_name": {"value": "Main Branch", "confidence": 0.90},
    "currency": {"value": "BDT", "confidence": 0.99}
  },
  "balances": {
    "opening_balance": {"value": 17500.00, "confidence": 0.95},
    "closing_balance": {"value": 15000.00, "confidence": 0.95},
    "total_debits": {"value": 5500.00, "confidence": 0.92},
    "total_credits": {"value": 3000.00, "confidence": 0.91}
  },
  "schema_info": {
    "detected_columns": {"value": ["Date", "Particulars", "Withdrawal", "Deposit", "Balance"], "confidence": 0.95},
    "column_mapping": {"value": {"Particulars": "description", "Withdrawal": "debit", "Deposit": "credit"}, "confidence": 0.90}
  },
  "transactions": [
    {
      "date": {"value": "2025-01-02", "confidence": 0.98},
      "description": {"value": "ATM Withdrawal", "confidence": 0.93},
      "debit": {"value": 2500.00, "confidence": 0.98},
      "credit": {"value": 0.00, "confidence": 0.98},
      "balance": {"value": 15000.00, "confidence": 0.90}
    },
    {
      "date": {"value": "2025-01-05", "confidence": 0.97},
      "description": {"value": "Salary Credit", "confidence": 0.95},
      "debit": {"value": 0.00, "confidence": 0.98},
      "credit": {"value": 50000.00, "confidence": 0.97},
      "balance": {"value": 65000.00, "confidence": 0.92}
    }
  ]
}`

// Cleanup builds the prompt for the OCR cleanup agent. The agent fixes
// character-level OCR errors while preserving the statement layout.
func Cleanup(rawOCRText string) string {
	return fmt.Sprintf(`You are an expert OCR cleanup specialist for bank statements. Your task is to clean and fix the raw OCR text while preserving the original structure and layout.

RAW OCR TEXT:
`+"```"+`
%s
`+"```"+`

CLEANUP TASKS:

1. **Fix Common OCR Errors:**
   - Replace common character substitutions (l→1, O→0, S→5, etc.)
   - Fix broken words and spacing issues
   - Correct misread dates and numbers
   - Fix currency symbols and decimal points

2. **Preserve Structure:**
   - Maintain table alignment and columns
   - Keep transaction rows intact
   - Preserve headers and section labels
   - Keep date-description-amount groupings

3. **Remove Noise:**
   - Remove OCR artifacts (random characters, symbols)
   - Clean up extra whitespace while preserving alignment
   - Remove duplicate characters or lines
   - Fix line breaks that split data incorrectly

4. **Enhance Readability:**
   - Ensure dates are in consistent format
   - Align numbers properly
   - Separate sections clearly
   - Fix truncated or merged words

OUTPUT FORMAT:
Return ONLY the cleaned text. Do NOT add explanations or JSON. Just output the cleaned, structured text that maintains the original bank statement layout.

CRITICAL: Preserve all financial data (dates, amounts, descriptions) exactly - just fix the OCR errors. Do not modify or interpret the data.
`, rawOCRText)
}

// Extraction builds the prompt for the structured data extraction
// agent. The agent converts cleaned text into the canonical JSON shape
// where every field carries a confidence score.
func Extraction(cleanedText string) string {
	return fmt.Sprintf(`You are an expert data extractor for bank statements. Extract structured information from the cleaned bank statement text into JSON format.

CLEANED BANK STATEMENT TEXT:
`+"```"+`
%s
`+"```"+`

EXTRACTION TASKS:

1. **Account Information:**
   - Account number (mask if needed: XXXX1234)
   - Account holder name
   - Account type (Savings, Current, etc.)

2. **Statement Period:**
   - Start date (convert to YYYY-MM-DD)
   - End date (convert to YYYY-MM-DD)

3. **Bank Information:**
   - Bank name
   - Branch name
   - Currency code (BDT, USD, EUR, etc.)

4. **Summary Balances:**
   - Opening balance
   - Closing balance
   - Total debits (sum of all withdrawals)
   - Total credits (sum of all deposits)

5. **All Transactions:**
   For EACH transaction, extract:
   - Date (convert to YYYY-MM-DD format)
   - Description (transaction details)
   - Debit amount (0.00 if none)
   - Credit amount (0.00 if none)
   - Balance (running balance after transaction)

6. **Schema Detection:**
   Banks vary in their column layouts. Record the column headers you
   actually see under "schema_info.detected_columns" and how they map to
   the standard fields under "schema_info.column_mapping". Preserve any
   non-standard columns on each transaction alongside the standard ones.

7. **Confidence Scores:**
   For each field, provide confidence (0.0 to 1.0) based on:
   - Text clarity and readability
   - Format consistency
   - Data completeness

OUTPUT FORMAT:
Return ONLY valid JSON following this structure:

%s

JSON REQUIREMENTS:
- Use double quotes (") for all keys and string values
- Dates must be ISO 8601 format (YYYY-MM-DD)
- Amounts must be numbers (not strings)
- Include confidence for every field
- Use 0.00 for missing debit/credit values
- Preserve original description text

CRITICAL: Return ONLY the JSON object. No explanatory text before or after.
`, cleanedText, sampleExtraction)
}

// Normalization builds the prompt for the validation agent. The agent
// receives the extracted tree and returns normalized_data plus
// validation_results.
func Normalization(extracted map[string]any) string {
	extractedJSON, err := json.MarshalIndent(extracted, "", "  ")
	if err != nil {
		extractedJSON = []byte("{}")
	}

	return fmt.Sprintf(`You are an expert data validator for bank statements. Normalize and validate the extracted data to ensure accuracy and consistency.

EXTRACTED DATA:
`+"```json"+`
%s
`+"```"+`

NORMALIZATION & VALIDATION TASKS:

1. **Date Validation:**
   - Verify all dates are valid and in YYYY-MM-DD format
   - Check that transaction dates fall within statement period
   - Ensure chronological ordering
   - Flag dates that seem incorrect

2. **Amount Validation:**
   - Verify all amounts are valid numbers
   - Check that debits/credits are not both non-zero for same transaction
   - Validate that running balance calculations are correct
   - Verify opening + credits - debits = closing balance
   - Flag any mathematical inconsistencies

3. **Currency Consistency:**
   - Ensure single currency throughout
   - Standardize to ISO 4217 code (BDT, USD, EUR, etc.)

4. **Data Normalization:**
   - Standardize date formats to ISO 8601
   - Remove extra spaces from descriptions
   - Normalize currency symbols to codes
   - Clean up formatting inconsistencies

5. **Balance Verification:**
   - Recalculate running balances from opening balance
   - Flag discrepancies between stated and calculated balances
   - Verify total debits and credits match transaction sums

6. **Confidence Adjustment:**
   - Increase confidence for validated fields
   - Decrease confidence for fields with inconsistencies
   - Add validation flags for problematic fields

OUTPUT FORMAT:
Return JSON with normalized data and validation results:

`+"```json"+`
{
  "normalized_data": {
    "account": { ... },
    "period": { ... },
    "bank": { ... },
    "balances": { ... },
    "transactions": [ ... ]
  },
  "validation_results": {
    "balance_verification": {
      "calculated_closing": 15000.00,
      "stated_closing": 15000.00,
      "matches": true,
      "confidence": 0.98
    },
    "date_validation": {
      "all_dates_valid": true,
      "chronological": true,
      "within_period": true,
      "confidence": 0.95
    },
    "amount_validation": {
      "all_amounts_valid": true,
      "running_balance_correct": true,
      "confidence": 0.93
    },
    "issues": [],
    "overall_confidence": 0.94
  }
}
`+"```"+`

CRITICAL:
- Return ONLY valid JSON
- Include both normalized_data and validation_results
- Flag all issues in the "issues" array
- Provide overall confidence score (0.0 to 1.0)
`, extractedJSON)
}

// Classification builds the vision prompt that labels the first page
// of a document as one of DocumentTypes.
func Classification() string {
	return `You are an expert document classifier. Analyze the provided document image and determine its type.

DOCUMENT TYPES:
1. bank_statement - Bank account statements showing transactions, balances, account details
2. invoice - Bills or invoices from vendors/suppliers with line items, totals, due dates
3. receipt - Purchase receipts with items, prices, payment information
4. generic - Any other document type (forms, letters, contracts, etc.)

CLASSIFICATION TASK:
- Analyze the visual layout, text content, and structure of the document
- Identify key indicators (e.g., "Account Statement", "Invoice #", "Receipt", transaction tables)
- Classify the document into one of the four types above

OUTPUT FORMAT:
Return ONLY a valid JSON object with this exact structure:
{
  "document_type": "bank_statement" | "invoice" | "receipt" | "generic",
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation of why this type was chosen"
}

FEW-SHOT EXAMPLES:

Example 1 (Bank Statement):
{
  "document_type": "bank_statement",
  "confidence": 0.95,
  "reasoning": "Document contains account number, statement period, transaction table with dates/descriptions/debits/credits/balances"
}

Example 2 (Invoice):
{
  "document_type": "invoice",
  "confidence": 0.92,
  "reasoning": "Document has invoice number, vendor details, line items with quantities/prices, subtotal, tax, total amount due"
}

Example 3 (Receipt):
{
  "document_type": "receipt",
  "confidence": 0.88,
  "reasoning": "Document shows purchase date, store name, itemized list of purchased items with prices, payment method, total paid"
}

CRITICAL: Return ONLY the JSON object. No explanatory text before or after.
`
}

// PipelineSummary renders a human-readable recap of a pipeline run for
// logs and debugging output.
func PipelineSummary(rawOCR, cleanedText string, extracted, normalized map[string]any) string {
	txns := 0
	if list, ok := extracted["transactions"].([]any); ok {
		txns = len(list)
	}

	accountNumber := leafValue(extracted, "account", "account_number")
	periodStart := leafValue(extracted, "period", "start_date")
	periodEnd := leafValue(extracted, "period", "end_date")

	overall := 0.0
	issues := 0
	balanceVerified := false
	if vr, ok := normalized["validation_results"].(map[string]any); ok {
		if v, ok := vr["overall_confidence"].(float64); ok {
			overall = v
		}
		if list, ok := vr["issues"].([]any); ok {
			issues = len(list)
		}
		if bv, ok := vr["balance_verification"].(map[string]any); ok {
			if m, ok := bv["matches"].(bool); ok {
				balanceVerified = m
			}
		}
	}

	return fmt.Sprintf(`
MULTI-AGENT PROCESSING PIPELINE SUMMARY

=== STAGE 1: RAW OCR ===
Length: %d characters
Preview: %s...

=== STAGE 2: CLEANED TEXT ===
Length: %d characters
Preview: %s...

=== STAGE 3: EXTRACTED DATA ===
Transactions found: %d
Account number: %s
Period: %s to %s

=== STAGE 4: NORMALIZED & VALIDATED ===
Overall Confidence: %.2f%%
Issues Found: %d
Balance Verified: %t

PIPELINE COMPLETE
`,
		len(rawOCR), preview(rawOCR, 200),
		len(cleanedText), preview(cleanedText, 200),
		txns, accountNumber, periodStart, periodEnd,
		overall*100, issues, balanceVerified)
}

// leafValue walks group -> field -> value and renders it, or "N/A".
func leafValue(tree map[string]any, group, field string) string {
	g, ok := tree[group].(map[string]any)
	if !ok {
		return "N/A"
	}
	f, ok := g[field].(map[string]any)
	if !ok {
		return "N/A"
	}
	v, ok := f["value"]
	if !ok || v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%v", v)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
