// Package store persists statement processing jobs and their extracted
// records in SQLite via sqlx, with goose-managed migrations.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a statement job. Transitions are
// monotonic: pending -> processing -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// JSONMap is a JSON object column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
}

// JSONFloats is a JSON array column of numbers (bounding boxes).
type JSONFloats []float64

func (f JSONFloats) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func (f *JSONFloats) Scan(src any) error {
	if src == nil {
		*f = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into JSONFloats", src)
	}
}

// Statement is a processing job over one uploaded PDF.
type Statement struct {
	ID       string `db:"id" json:"id"`
	Filename string `db:"filename" json:"filename"`
	FilePath string `db:"file_path" json:"file_path"`
	FileHash string `db:"file_hash" json:"file_hash"`
	FileSize int64  `db:"file_size" json:"file_size"`

	Status                Status     `db:"status" json:"status"`
	ProcessingStartedAt   *time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
	ProcessingError       *string    `db:"processing_error" json:"processing_error,omitempty"`

	DocumentType             string   `db:"document_type" json:"document_type"`
	ClassificationConfidence *float64 `db:"classification_confidence" json:"classification_confidence,omitempty"`

	// SchemaInfo records the source columns detected in the document and
	// their mapping to the canonical transaction fields.
	SchemaInfo JSONMap `db:"schema_info" json:"schema_info,omitempty"`

	PageCount         int `db:"page_count" json:"page_count"`
	TotalTransactions int `db:"total_transactions" json:"total_transactions"`

	ModelUsed             *string `db:"model_used" json:"model_used,omitempty"`
	PromptTokens          int     `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens      int     `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens           int     `db:"total_tokens" json:"total_tokens"`
	ProcessingTimeSeconds float64 `db:"processing_time_seconds" json:"processing_time_seconds"`

	OverallConfidence *float64 `db:"overall_confidence" json:"overall_confidence,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Customer is the account-holder record for a statement. 1:1.
type Customer struct {
	ID          string `db:"id" json:"id"`
	StatementID string `db:"statement_id" json:"statement_id"`

	AccountHolderName   *string `db:"account_holder_name" json:"account_holder_name,omitempty"`
	AccountNumber       *string `db:"account_number" json:"account_number,omitempty"`
	AccountNumberMasked *string `db:"account_number_masked" json:"account_number_masked,omitempty"`
	AccountType         *string `db:"account_type" json:"account_type,omitempty"`

	Address *string `db:"address" json:"address,omitempty"`
	Email   *string `db:"email" json:"email,omitempty"`
	Phone   *string `db:"phone" json:"phone,omitempty"`

	CustomerID *string `db:"customer_id" json:"customer_id,omitempty"`
	BranchCode *string `db:"branch_code" json:"branch_code,omitempty"`

	ConfidenceScores JSONMap `db:"confidence_scores" json:"confidence_scores,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Bank is the bank and period record for a statement. 1:1.
type Bank struct {
	ID          string `db:"id" json:"id"`
	StatementID string `db:"statement_id" json:"statement_id"`

	BankName      *string `db:"bank_name" json:"bank_name,omitempty"`
	BankCode      *string `db:"bank_code" json:"bank_code,omitempty"`
	BranchName    *string `db:"branch_name" json:"branch_name,omitempty"`
	BranchAddress *string `db:"branch_address" json:"branch_address,omitempty"`

	StatementDate   *time.Time `db:"statement_date" json:"statement_date,omitempty"`
	PeriodStartDate *time.Time `db:"period_start_date" json:"period_start_date,omitempty"`
	PeriodEndDate   *time.Time `db:"period_end_date" json:"period_end_date,omitempty"`

	OpeningBalance *float64 `db:"opening_balance" json:"opening_balance,omitempty"`
	ClosingBalance *float64 `db:"closing_balance" json:"closing_balance,omitempty"`
	Currency       string   `db:"currency" json:"currency"`

	TotalDebits  *float64 `db:"total_debits" json:"total_debits,omitempty"`
	TotalCredits *float64 `db:"total_credits" json:"total_credits,omitempty"`

	ConfidenceScores JSONMap `db:"confidence_scores" json:"confidence_scores,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is one statement line. 1:N, ordered by date on reads.
type Transaction struct {
	ID          string `db:"id" json:"id"`
	StatementID string `db:"statement_id" json:"statement_id"`

	Date        *time.Time `db:"date" json:"date,omitempty"`
	Description *string    `db:"description" json:"description,omitempty"`

	Debit   *float64 `db:"debit" json:"debit,omitempty"`
	Credit  *float64 `db:"credit" json:"credit,omitempty"`
	Balance *float64 `db:"balance" json:"balance,omitempty"`
	Amount  *float64 `db:"amount" json:"amount,omitempty"`

	TransactionType *string `db:"transaction_type" json:"transaction_type,omitempty"`
	ReferenceNumber *string `db:"reference_number" json:"reference_number,omitempty"`
	CheckNumber     *string `db:"check_number" json:"check_number,omitempty"`
	Category        *string `db:"category" json:"category,omitempty"`

	RawData JSONMap `db:"raw_data" json:"raw_data,omitempty"`

	Confidence       *float64 `db:"confidence" json:"confidence,omitempty"`
	ConfidenceScores JSONMap  `db:"confidence_scores" json:"confidence_scores,omitempty"`

	PageNumber *int       `db:"page_number" json:"page_number,omitempty"`
	BBox       JSONFloats `db:"bbox" json:"bbox,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessingLog records one pipeline step for a statement.
type ProcessingLog struct {
	ID          string `db:"id" json:"id"`
	StatementID string `db:"statement_id" json:"statement_id"`

	Step    string  `db:"step" json:"step"`
	Status  string  `db:"status" json:"status"`
	Message *string `db:"message" json:"message,omitempty"`

	DurationSeconds *float64 `db:"duration_seconds" json:"duration_seconds,omitempty"`
	Metadata        JSONMap  `db:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FullStatement is a statement with all related records.
type FullStatement struct {
	Statement    Statement       `json:"statement"`
	Customer     *Customer       `json:"customer_details,omitempty"`
	Bank         *Bank           `json:"bank_details,omitempty"`
	Transactions []Transaction   `json:"transactions"`
	Logs         []ProcessingLog `json:"processing_logs"`
}

// Result is everything SaveResult persists for a completed job.
type Result struct {
	Customer     *Customer
	Bank         *Bank
	Transactions []Transaction

	PageCount                int
	DocumentType             string
	ClassificationConfidence *float64
	SchemaInfo               JSONMap
	ModelUsed                string
	PromptTokens             int
	CompletionTokens         int
	TotalTokens              int
	ProcessingTimeSeconds    float64
	OverallConfidence        *float64
}
