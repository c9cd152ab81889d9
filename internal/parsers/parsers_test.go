package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"deduction-matching-service/pkg/errors"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestDeductionParser_Parse(t *testing.T) {
	input := `id,amount,customerId,deductionDate,referenceNumber,description
D1,1000.00,C1,2025-01-10,INV-001,Promo allowance
D2,"$1,250.50",C2,2025-01-12,,
D3,,C3,,,missing amount
`
	parser, err := NewDeductionParser(nil)
	if err != nil {
		t.Fatalf("NewDeductionParser() error = %v", err)
	}

	deductions, stats, err := parser.Parse(context.Background(), "inline", strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(deductions) != 3 {
		t.Fatalf("Expected 3 deductions, got %d", len(deductions))
	}
	if stats.RecordsValid != 3 || stats.HasErrors() {
		t.Errorf("Unexpected stats: %s", stats)
	}

	d1 := deductions[0]
	if d1.ID != "D1" || d1.CustomerID != "C1" || d1.ReferenceNumber != "INV-001" || d1.Description != "Promo allowance" {
		t.Errorf("Unexpected first deduction: %+v", d1)
	}
	if d1.DeductionDate == nil || d1.DeductionDate.Day() != 10 {
		t.Errorf("Expected deduction date 2025-01-10, got %v", d1.DeductionDate)
	}

	if !deductions[1].Amount.Decimal.Equal(decimal.RequireFromString("1250.50")) {
		t.Errorf("Expected amount 1250.50, got %s", deductions[1].Amount.Decimal)
	}
	if deductions[1].DeductionDate == nil || deductions[1].ReferenceNumber != "" {
		t.Errorf("Unexpected second deduction: %+v", deductions[1])
	}

	if deductions[2].Amount.Valid {
		t.Error("Expected empty amount to stay absent")
	}
	if deductions[2].DeductionDate != nil {
		t.Error("Expected empty date to stay absent")
	}
}

func TestDeductionParser_RowErrors(t *testing.T) {
	input := `amount,deductionDate,customerId
abc,2025-01-10,C1
100,not-a-date,C2
200,2025-01-10,C3
`
	parser, _ := NewDeductionParser(nil)
	deductions, stats, err := parser.Parse(context.Background(), "inline", strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(deductions) != 1 || deductions[0].CustomerID != "C3" {
		t.Fatalf("Expected only the C3 row to parse, got %d rows", len(deductions))
	}
	if stats.ErrorCount != 2 {
		t.Fatalf("Expected 2 row errors, got %d", stats.ErrorCount)
	}
	if stats.Errors[0].Line != 2 || stats.Errors[0].Field != "amount" {
		t.Errorf("Unexpected first error: %v", stats.Errors[0])
	}
	if !errors.HasCode(stats.Errors[1], errors.CodeInvalidDate) {
		t.Errorf("Expected invalid date code, got %v", stats.Errors[1])
	}

	summary := stats.Summary("inline")
	if summary.Total != 2 || summary.ByCategory[errors.CategoryParse] != 2 {
		t.Errorf("Expected 2 parse errors in summary, got %+v", summary)
	}
	if summary.ByCode[errors.CodeInvalidDate] != 1 {
		t.Errorf("Expected one invalid date in summary, got %v", summary.ByCode)
	}
	if summary.SampleErrors[0].Context["line"] != 2 || summary.SampleErrors[0].Context["file"] != "inline" {
		t.Errorf("Expected line and file context, got %v", summary.SampleErrors[0].Context)
	}
}

func TestDeductionParser_MissingRequiredColumn(t *testing.T) {
	parser, _ := NewDeductionParser(nil)
	_, _, err := parser.Parse(context.Background(), "inline", strings.NewReader("id,customerId\nD1,C1\n"))
	if !errors.HasCode(err, errors.CodeMissingColumn) {
		t.Fatalf("Expected missing column error, got %v", err)
	}
}

func TestDeductionParser_HeaderCaseAndAliases(t *testing.T) {
	config := DefaultDeductionColumns()
	config.ColumnAliases[FieldAmount] = "Deduction Amount"

	parser, err := NewDeductionParser(config)
	if err != nil {
		t.Fatalf("NewDeductionParser() error = %v", err)
	}

	input := "CUSTOMERID,Deduction Amount\nC9,42\n"
	deductions, _, err := parser.Parse(context.Background(), "inline", strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(deductions) != 1 || deductions[0].CustomerID != "C9" || !deductions[0].Amount.Decimal.Equal(decimal.NewFromInt(42)) {
		t.Errorf("Unexpected deductions: %+v", deductions)
	}
}

func TestDeductionParser_NoHeader(t *testing.T) {
	config := DefaultDeductionColumns()
	config.HasHeader = false
	config.Delimiter = ';'

	parser, err := NewDeductionParser(config)
	if err != nil {
		t.Fatalf("NewDeductionParser() error = %v", err)
	}

	deductions, _, err := parser.Parse(context.Background(), "inline", strings.NewReader("D1;10;C1;2025-02-01;R1;desc\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(deductions) != 1 || deductions[0].ReferenceNumber != "R1" {
		t.Errorf("Unexpected deductions: %+v", deductions)
	}
}

func TestTransactionParser_Parse(t *testing.T) {
	input := `id,netAmount,customerId,transactionDate,transactionNumber,description

T1,1000,C1,2025-01-10,INV-001,Promo allowance
,500,C2,2025-01-11,INV-002,no id
T3,,C3,,,
`
	parser, err := NewTransactionParser(nil)
	if err != nil {
		t.Fatalf("NewTransactionParser() error = %v", err)
	}

	transactions, stats, err := parser.Parse(context.Background(), "inline", strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(transactions))
	}
	if transactions[0].TransactionNumber != "INV-001" || !transactions[0].NetAmount.Valid {
		t.Errorf("Unexpected first transaction: %+v", transactions[0])
	}
	if transactions[1].ID != "T3" || transactions[1].NetAmount.Valid {
		t.Errorf("Expected T3 with absent amount, got %+v", transactions[1])
	}
	if stats.ErrorCount != 1 || !errors.HasCode(stats.Errors[0], errors.CodeMissingField) {
		t.Errorf("Expected one missing field error, got %v", stats.Errors)
	}
}

func TestTransactionParser_ParseFile(t *testing.T) {
	path := writeTempFile(t, "candidates.csv", "\xEF\xBB\xBFid,netAmount\nT1,10\n")

	parser, _ := NewTransactionParser(nil)
	transactions, _, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(transactions) != 1 || transactions[0].ID != "T1" {
		t.Errorf("Expected BOM-prefixed header to parse, got %+v", transactions)
	}
}

func TestParseFile_Errors(t *testing.T) {
	parser, _ := NewDeductionParser(nil)

	_, _, err := parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("Expected file not found, got %v", err)
	}

	bad := writeTempFile(t, "bad.csv", "amount\n\xff\xfe\n")
	_, _, err = parser.ParseFile(context.Background(), bad)
	if !errors.HasCode(err, errors.CodeEncodingError) {
		t.Errorf("Expected encoding error, got %v", err)
	}
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser, _ := NewDeductionParser(nil)
	_, _, err := parser.Parse(ctx, "inline", strings.NewReader("amount\n1\n2\n"))
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestColumnConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ColumnConfig)
		wantError bool
	}{
		{"default", func(*ColumnConfig) {}, false},
		{"empty amount column", func(c *ColumnConfig) { c.AmountColumn = " " }, true},
		{"empty id column", func(c *ColumnConfig) { c.IDColumn = "" }, true},
		{"quote delimiter", func(c *ColumnConfig) { c.Delimiter = '"' }, true},
		{"zero delimiter", func(c *ColumnConfig) { c.Delimiter = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultTransactionColumns()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestDecodeDeductions(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{"array", `[{"id":"D1","amount":1000,"deductionDate":"2025-01-10"}]`, 1, false},
		{"wrapped", `{"deductions":[{"id":"D1","amount":"5"},{"id":"D2","amount":6}]}`, 2, false},
		{"single deduction", `{"deduction":{"id":"D1","amount":1},"candidates":[]}`, 1, false},
		{"empty array", `[]`, 0, false},
		{"empty document", `   `, 0, true},
		{"syntax error", "[\n{\"id\": }", 0, true},
		{"bad date", `[{"id":"D1","amount":1,"deductionDate":"soon"}]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deductions, err := DecodeDeductions("inline", strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeDeductions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(deductions) != tt.wantLen {
				t.Errorf("Expected %d deductions, got %d", tt.wantLen, len(deductions))
			}
			if err != nil && !errors.HasCode(err, errors.CodeInvalidFormat) {
				t.Errorf("Expected invalid format code, got %v", err)
			}
		})
	}
}

func TestDecodeTransactions(t *testing.T) {
	inputs := map[string]string{
		"array":        `[{"id":"T1","netAmount":1}]`,
		"candidates":   `{"candidates":[{"id":"T1","netAmount":1}]}`,
		"transactions": `{"transactions":[{"id":"T1","netAmount":1}]}`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			transactions, err := DecodeTransactions("inline", strings.NewReader(input))
			if err != nil {
				t.Fatalf("DecodeTransactions() error = %v", err)
			}
			if len(transactions) != 1 || transactions[0].ID != "T1" {
				t.Errorf("Unexpected transactions: %+v", transactions)
			}
		})
	}
}

func TestLoadByExtension(t *testing.T) {
	ctx := context.Background()

	jsonPath := writeTempFile(t, "deductions.JSON", `[{"id":"D1","amount":10}]`)
	deductions, skipped, err := LoadDeductions(ctx, jsonPath)
	if err != nil || len(deductions) != 1 {
		t.Fatalf("LoadDeductions(json) = %d, %v", len(deductions), err)
	}
	if skipped.Total != 0 {
		t.Errorf("Expected no skipped rows for JSON, got %d", skipped.Total)
	}

	csvPath := writeTempFile(t, "candidates.csv", "id,netAmount\nT1,10\nT2,20\n,30\n")
	transactions, skipped, err := LoadTransactions(ctx, csvPath)
	if err != nil || len(transactions) != 2 {
		t.Fatalf("LoadTransactions(csv) = %d, %v", len(transactions), err)
	}
	if skipped.Total != 1 {
		t.Errorf("Expected the row without an id to be skipped, got %d", skipped.Total)
	}

	if _, _, err := LoadTransactions(ctx, "candidates.xlsx"); !errors.HasCode(err, errors.CodeFileCorrupted) {
		t.Errorf("Expected unsupported extension error, got %v", err)
	}

	if _, _, err := LoadDeductions(ctx, filepath.Join(t.TempDir(), "nope.json")); !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("Expected file not found, got %v", err)
	}
}
