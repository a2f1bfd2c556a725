package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrNotFound is returned when a statement does not exist.
	ErrNotFound = errors.New("statement not found")
	// ErrConflict is returned when a status transition is not allowed
	// from the statement's current state.
	ErrConflict = errors.New("invalid status transition")
)

// Store wraps the statements database.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to the database and applies pending migrations.
func Open(driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite3" {
		// SQLite serializes writers anyway; one connection avoids
		// SQLITE_BUSY under the worker pool.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("database ready", "driver", driver)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateStatement inserts a new pending statement. Missing ID and
// timestamps are filled in.
func (s *Store) CreateStatement(ctx context.Context, st *Statement) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Status == "" {
		st.Status = StatusPending
	}
	if st.DocumentType == "" {
		st.DocumentType = "bank_statement"
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO bank_statements (
			id, filename, file_path, file_hash, file_size, status,
			document_type, page_count, total_transactions,
			prompt_tokens, completion_tokens, total_tokens,
			processing_time_seconds, created_at, updated_at
		) VALUES (
			:id, :filename, :file_path, :file_hash, :file_size, :status,
			:document_type, :page_count, :total_transactions,
			:prompt_tokens, :completion_tokens, :total_tokens,
			:processing_time_seconds, :created_at, :updated_at
		)`, st)
	if err != nil {
		return fmt.Errorf("failed to insert statement: %w", err)
	}
	return nil
}

// FindByHash returns the statement with the given content hash, or
// nil when none exists.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Statement, error) {
	var st Statement
	err := s.db.GetContext(ctx, &st,
		`SELECT * FROM bank_statements WHERE file_hash = ?`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query by hash: %w", err)
	}
	return &st, nil
}

// Get returns a statement by id.
func (s *Store) Get(ctx context.Context, id string) (*Statement, error) {
	var st Statement
	err := s.db.GetContext(ctx, &st,
		`SELECT * FROM bank_statements WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	return &st, nil
}

// GetFull returns a statement with its customer, bank, transactions
// (ordered by date) and processing logs.
func (s *Store) GetFull(ctx context.Context, id string) (*FullStatement, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	full := &FullStatement{Statement: *st, Transactions: []Transaction{}, Logs: []ProcessingLog{}}

	var customer Customer
	err = s.db.GetContext(ctx, &customer,
		`SELECT * FROM customer_details WHERE statement_id = ?`, id)
	if err == nil {
		full.Customer = &customer
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get customer details: %w", err)
	}

	var bank Bank
	err = s.db.GetContext(ctx, &bank,
		`SELECT * FROM bank_details WHERE statement_id = ?`, id)
	if err == nil {
		full.Bank = &bank
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get bank details: %w", err)
	}

	if err := s.db.SelectContext(ctx, &full.Transactions,
		`SELECT * FROM transactions WHERE statement_id = ? ORDER BY date, created_at`, id); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	if err := s.db.SelectContext(ctx, &full.Logs,
		`SELECT * FROM processing_logs WHERE statement_id = ? ORDER BY created_at`, id); err != nil {
		return nil, fmt.Errorf("failed to get processing logs: %w", err)
	}

	return full, nil
}

// List returns statements newest first with the total count.
func (s *Store) List(ctx context.Context, skip, limit int) ([]Statement, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM bank_statements`); err != nil {
		return nil, 0, fmt.Errorf("failed to count statements: %w", err)
	}

	statements := []Statement{}
	if err := s.db.SelectContext(ctx, &statements,
		`SELECT * FROM bank_statements ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, skip); err != nil {
		return nil, 0, fmt.Errorf("failed to list statements: %w", err)
	}
	return statements, total, nil
}

// MarkProcessing moves a pending statement to processing.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_statements
		SET status = ?, processing_started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusProcessing, now, now, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark processing: %w", err)
	}
	return s.requireTransition(ctx, s.db, res, id)
}

// SaveResult persists a completed pipeline result atomically: the
// customer, bank and transaction records plus the statement aggregates,
// and flips the status processing -> completed.
func (s *Store) SaveResult(ctx context.Context, id string, result *Result) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	docType := result.DocumentType
	if docType == "" {
		docType = "bank_statement"
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bank_statements
		SET status = ?, processing_completed_at = ?, updated_at = ?,
		    document_type = ?, classification_confidence = ?,
		    schema_info = ?,
		    page_count = ?, total_transactions = ?,
		    model_used = ?, prompt_tokens = ?, completion_tokens = ?,
		    total_tokens = ?, processing_time_seconds = ?,
		    overall_confidence = ?
		WHERE id = ? AND status = ?`,
		StatusCompleted, now, now,
		docType, result.ClassificationConfidence,
		result.SchemaInfo,
		result.PageCount, len(result.Transactions),
		result.ModelUsed, result.PromptTokens, result.CompletionTokens,
		result.TotalTokens, result.ProcessingTimeSeconds,
		result.OverallConfidence,
		id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update statement: %w", err)
	}
	if err := s.requireTransition(ctx, tx, res, id); err != nil {
		return err
	}

	if result.Customer != nil {
		c := *result.Customer
		c.ID = uuid.NewString()
		c.StatementID = id
		c.CreatedAt = now
		c.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO customer_details (
				id, statement_id, account_holder_name, account_number,
				account_number_masked, account_type, address, email, phone,
				customer_id, branch_code, confidence_scores, created_at, updated_at
			) VALUES (
				:id, :statement_id, :account_holder_name, :account_number,
				:account_number_masked, :account_type, :address, :email, :phone,
				:customer_id, :branch_code, :confidence_scores, :created_at, :updated_at
			)`, c); err != nil {
			return fmt.Errorf("failed to insert customer details: %w", err)
		}
	}

	if result.Bank != nil {
		b := *result.Bank
		b.ID = uuid.NewString()
		b.StatementID = id
		if b.Currency == "" {
			b.Currency = "USD"
		}
		b.CreatedAt = now
		b.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO bank_details (
				id, statement_id, bank_name, bank_code, branch_name, branch_address,
				statement_date, period_start_date, period_end_date,
				opening_balance, closing_balance, currency,
				total_debits, total_credits, confidence_scores, created_at, updated_at
			) VALUES (
				:id, :statement_id, :bank_name, :bank_code, :branch_name, :branch_address,
				:statement_date, :period_start_date, :period_end_date,
				:opening_balance, :closing_balance, :currency,
				:total_debits, :total_credits, :confidence_scores, :created_at, :updated_at
			)`, b); err != nil {
			return fmt.Errorf("failed to insert bank details: %w", err)
		}
	}

	for i := range result.Transactions {
		t := result.Transactions[i]
		t.ID = uuid.NewString()
		t.StatementID = id
		t.CreatedAt = now
		t.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO transactions (
				id, statement_id, date, description, debit, credit, balance, amount,
				transaction_type, reference_number, check_number, category,
				raw_data, confidence, confidence_scores, page_number, bbox,
				created_at, updated_at
			) VALUES (
				:id, :statement_id, :date, :description, :debit, :credit, :balance, :amount,
				:transaction_type, :reference_number, :check_number, :category,
				:raw_data, :confidence, :confidence_scores, :page_number, :bbox,
				:created_at, :updated_at
			)`, t); err != nil {
			return fmt.Errorf("failed to insert transaction %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

// MarkFailed moves a pending or processing statement to failed.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_statements
		SET status = ?, processing_error = ?, processing_completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, message, now, now, id, StatusPending, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return s.requireTransition(ctx, s.db, res, id)
}

// Delete removes a statement and all related records (cascade) and
// returns the deleted row so callers can clean up the stored file.
func (s *Store) Delete(ctx context.Context, id string) (*Statement, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bank_statements WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete statement: %w", err)
	}
	return st, nil
}

// AppendLog records a processing step for a statement.
func (s *Store) AppendLog(ctx context.Context, log *ProcessingLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = time.Now().UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO processing_logs (
			id, statement_id, step, status, message, duration_seconds, metadata, created_at
		) VALUES (
			:id, :statement_id, :step, :status, :message, :duration_seconds, :metadata, :created_at
		)`, log)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// SweepStale fails processing statements whose work started before
// olderThan ago. Rows picked up more recently are left alone so a
// restart does not kill work another instance may still own.
func (s *Store) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_statements
		SET status = ?, processing_error = ?, processing_completed_at = ?, updated_at = ?
		WHERE status = ? AND processing_started_at IS NOT NULL AND processing_started_at <= ?`,
		StatusFailed, "interrupted", now, now, StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale statements: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("swept interrupted statements", "count", n)
	}
	return int(n), nil
}

// PendingIDs returns the ids of pending statements, oldest first.
func (s *Store) PendingIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM bank_statements WHERE status = ? ORDER BY created_at`,
		StatusPending); err != nil {
		return nil, fmt.Errorf("failed to list pending statements: %w", err)
	}
	return ids, nil
}

// rowGetter is satisfied by both *sqlx.DB and *sqlx.Tx so transition
// checks can run inside an open transaction.
type rowGetter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// requireTransition validates that a guarded status UPDATE matched a
// row, distinguishing missing statements from illegal transitions. The
// existence check goes through q: with SQLite capped at one open
// connection, a query routed around SaveResult's transaction would
// block on the connection the transaction itself holds.
func (s *Store) requireTransition(ctx context.Context, q rowGetter, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM bank_statements WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to check statement: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}
