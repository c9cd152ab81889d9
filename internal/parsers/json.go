package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/pkg/errors"
)

// Format identifies an input file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DetectFormat picks the input format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.FileError(errors.CodeFileCorrupted, path,
			fmt.Errorf("unsupported file extension %q", filepath.Ext(path))).
			WithSuggestion("use a .csv or .json file")
	}
}

// LoadDeductions reads deductions from a CSV or JSON file. The summary lists
// the CSV rows that were skipped; JSON documents either decode whole or fail.
func LoadDeductions(ctx context.Context, path string) ([]*models.Deduction, *errors.ErrorSummary, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	if format == FormatJSON {
		data, err := readFile(path)
		if err != nil {
			return nil, nil, err
		}
		deductions, err := DecodeDeductions(path, bytes.NewReader(data))
		return deductions, errors.NewErrorSummary(nil), err
	}

	parser, err := NewDeductionParser(nil)
	if err != nil {
		return nil, nil, err
	}
	deductions, stats, err := parser.ParseFile(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return deductions, stats.Summary(path), nil
}

// LoadTransactions reads candidate transactions from a CSV or JSON file
func LoadTransactions(ctx context.Context, path string) ([]*models.Transaction, *errors.ErrorSummary, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	if format == FormatJSON {
		data, err := readFile(path)
		if err != nil {
			return nil, nil, err
		}
		transactions, err := DecodeTransactions(path, bytes.NewReader(data))
		return transactions, errors.NewErrorSummary(nil), err
	}

	parser, err := NewTransactionParser(nil)
	if err != nil {
		return nil, nil, err
	}
	transactions, stats, err := parser.ParseFile(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return transactions, stats.Summary(path), nil
}

// DecodeDeductions reads either a JSON array of deductions or a request document
// carrying a "deductions" array or a single "deduction".
func DecodeDeductions(source string, r io.Reader) ([]*models.Deduction, error) {
	var wrapped struct {
		Deduction  *models.Deduction   `json:"deduction"`
		Deductions []*models.Deduction `json:"deductions"`
	}
	var list []*models.Deduction

	if err := decodeListOrObject(source, r, &list, &wrapped); err != nil {
		return nil, err
	}
	if list != nil {
		return list, nil
	}
	if wrapped.Deductions == nil && wrapped.Deduction != nil {
		return []*models.Deduction{wrapped.Deduction}, nil
	}
	return wrapped.Deductions, nil
}

// DecodeTransactions reads either a JSON array of transactions or an object with a
// "candidates" (or "transactions") array.
func DecodeTransactions(source string, r io.Reader) ([]*models.Transaction, error) {
	var wrapped struct {
		Candidates   []*models.Transaction `json:"candidates"`
		Transactions []*models.Transaction `json:"transactions"`
	}
	var list []*models.Transaction

	if err := decodeListOrObject(source, r, &list, &wrapped); err != nil {
		return nil, err
	}
	if list != nil {
		return list, nil
	}
	if wrapped.Candidates != nil {
		return wrapped.Candidates, nil
	}
	return wrapped.Transactions, nil
}

func decodeListOrObject(source string, r io.Reader, list, object interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.ParseError(errors.CodeInvalidFormat, source, 1, "document", "", fmt.Errorf("empty JSON document"))
	}

	target := object
	if trimmed[0] == '[' {
		target = list
	}

	if err := json.Unmarshal(trimmed, target); err != nil {
		line := 1
		if se, ok := err.(*json.SyntaxError); ok {
			line += bytes.Count(trimmed[:se.Offset], []byte("\n"))
		}
		return errors.ParseError(errors.CodeInvalidFormat, source, line, "document", "", err).
			WithSuggestion("check that the file is valid JSON with date fields in YYYY-MM-DD format")
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, errors.FileError(errors.CodeDirectoryError, path, err)
		}
	}
	return data, nil
}
