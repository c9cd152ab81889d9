package parsers

import (
	"context"
	"encoding/csv"
	"io"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// TransactionParser handles parsing of candidate transaction CSV files
type TransactionParser struct {
	*BaseParser
	config *ColumnConfig
	logger logger.Logger
}

// NewTransactionParser creates a new TransactionParser with the given column layout
func NewTransactionParser(config *ColumnConfig) (*TransactionParser, error) {
	if config == nil {
		config = DefaultTransactionColumns()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"transaction_parser_config",
			config.IDColumn,
			err,
		)
	}

	return &TransactionParser{
		BaseParser: NewBaseParser(config.parseConfig()),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("transaction_parser"),
	}, nil
}

// ParseFile parses a CSV file containing candidate transactions
func (tp *TransactionParser) ParseFile(ctx context.Context, path string) ([]*models.Transaction, *ParseStats, error) {
	tp.logger.WithField("file_path", path).Info("Starting transaction parsing")

	file, reader, err := tp.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return tp.parse(ctx, path, reader)
}

// Parse parses transactions from r; source names the input in error messages
func (tp *TransactionParser) Parse(ctx context.Context, source string, r io.Reader) ([]*models.Transaction, *ParseStats, error) {
	return tp.parse(ctx, source, tp.NewReader(r))
}

func (tp *TransactionParser) parse(ctx context.Context, source string, reader *csv.Reader) ([]*models.Transaction, *ParseStats, error) {
	parseCtx := NewParseContext(ctx, source)
	required := []string{tp.config.GetColumnName(FieldID)}

	return parseRecords[*models.Transaction](tp.BaseParser, parseCtx, reader, required, tp.config.columns(), tp.buildTransaction)
}

// buildTransaction creates a Transaction from a CSV record; rows without an ID are rejected
func (tp *TransactionParser) buildTransaction(record []string, parseCtx *ParseContext) (*models.Transaction, *ParseError) {
	idCol := tp.config.GetColumnName(FieldID)
	amountCol := tp.config.GetColumnName(FieldAmount)
	dateCol := tp.config.GetColumnName(FieldDate)

	amountStr := tp.FieldValue(record, parseCtx, amountCol)
	amount, err := models.ParseOptionalDecimal(amountStr)
	if err != nil {
		return nil, fieldError(parseCtx, errors.CodeInvalidAmount, amountCol, amountStr, err)
	}

	dateStr := tp.FieldValue(record, parseCtx, dateCol)
	date, err := models.ParseOptionalDate(dateStr)
	if err != nil {
		return nil, fieldError(parseCtx, errors.CodeInvalidDate, dateCol, dateStr, err)
	}

	tx := &models.Transaction{
		ID:                tp.FieldValue(record, parseCtx, idCol),
		NetAmount:         amount,
		CustomerID:        tp.FieldValue(record, parseCtx, tp.config.GetColumnName(FieldCustomer)),
		TransactionDate:   date,
		TransactionNumber: tp.FieldValue(record, parseCtx, tp.config.GetColumnName(FieldReference)),
		Description:       tp.FieldValue(record, parseCtx, tp.config.GetColumnName(FieldDescription)),
	}

	if err := tx.Validate(); err != nil {
		return nil, fieldError(parseCtx, errors.CodeMissingField, idCol, "", err)
	}

	return tx, nil
}
