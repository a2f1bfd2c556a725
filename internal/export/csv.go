// Package export renders completed statements for download.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
)

// Filename builds the download name: statement_<id>_<YYYYMMDD>.csv.
func Filename(statementID string, now time.Time) string {
	return fmt.Sprintf("statement_%s_%s.csv", statementID, now.Format("20060102"))
}

// CSV renders the statement in the fixed layout downstream tooling
// expects: header block, bank and account sections, the transaction
// table, and summary totals.
func CSV(full *store.FullStatement) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	write := func(fields ...string) {
		w.Write(fields)
	}
	blank := func() {
		w.Write([]string{""})
	}

	write("Bank Statement Export")
	blank()

	var bank store.Bank
	if full.Bank != nil {
		bank = *full.Bank
	}
	currency := bank.Currency
	if currency == "" {
		currency = "USD"
	}
	write("Bank Name:", orNA(bank.BankName))
	write("Branch:", orNA(bank.BranchName))
	write("Currency:", currency)
	blank()

	var customer store.Customer
	if full.Customer != nil {
		customer = *full.Customer
	}
	write("Account Holder:", orNA(customer.AccountHolderName))
	write("Account Number:", orNA(customer.AccountNumberMasked))
	write("Account Type:", orNA(customer.AccountType))
	blank()

	write("Statement Period:", fmt.Sprintf("%s to %s",
		dateOrNA(bank.PeriodStartDate), dateOrNA(bank.PeriodEndDate)))
	write("Opening Balance:", fixed2(bank.OpeningBalance))
	write("Closing Balance:", fixed2(bank.ClosingBalance))
	blank()

	write("TRANSACTIONS")
	write("Date", "Description", "Debit", "Credit", "Balance")
	for _, txn := range full.Transactions {
		date := ""
		if txn.Date != nil {
			date = txn.Date.Format("2006-01-02")
		}
		balance := ""
		if txn.Balance != nil {
			balance = fixed2(txn.Balance)
		}
		write(date, orEmpty(txn.Description), fixed2(txn.Debit), fixed2(txn.Credit), balance)
	}
	blank()

	write("SUMMARY")
	write("Total Debits:", fixed2(bank.TotalDebits))
	write("Total Credits:", fixed2(bank.TotalCredits))
	write("Final Balance:", fixed2(bank.ClosingBalance))

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateOrNA(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("2006-01-02")
}

// fixed2 renders a two-decimal amount; nil renders as 0.00.
func fixed2(f *float64) string {
	if f == nil {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", *f)
}
