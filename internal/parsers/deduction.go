package parsers

import (
	"context"
	"encoding/csv"
	"io"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// DeductionParser handles parsing of deduction CSV files
type DeductionParser struct {
	*BaseParser
	config *ColumnConfig
	logger logger.Logger
}

// NewDeductionParser creates a new DeductionParser with the given column layout
func NewDeductionParser(config *ColumnConfig) (*DeductionParser, error) {
	if config == nil {
		config = DefaultDeductionColumns()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"deduction_parser_config",
			config.AmountColumn,
			err,
		)
	}

	return &DeductionParser{
		BaseParser: NewBaseParser(config.parseConfig()),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("deduction_parser"),
	}, nil
}

// ParseFile parses a CSV file containing deductions
func (dp *DeductionParser) ParseFile(ctx context.Context, path string) ([]*models.Deduction, *ParseStats, error) {
	dp.logger.WithField("file_path", path).Info("Starting deduction parsing")

	file, reader, err := dp.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return dp.parse(ctx, path, reader)
}

// Parse parses deductions from r; source names the input in error messages
func (dp *DeductionParser) Parse(ctx context.Context, source string, r io.Reader) ([]*models.Deduction, *ParseStats, error) {
	return dp.parse(ctx, source, dp.NewReader(r))
}

func (dp *DeductionParser) parse(ctx context.Context, source string, reader *csv.Reader) ([]*models.Deduction, *ParseStats, error) {
	parseCtx := NewParseContext(ctx, source)
	required := []string{dp.config.GetColumnName(FieldAmount)}

	return parseRecords[*models.Deduction](dp.BaseParser, parseCtx, reader, required, dp.config.columns(), dp.buildDeduction)
}

// buildDeduction creates a Deduction from a CSV record. An empty amount is kept as
// absent so the engine can report the row as invalid input instead of dropping it.
func (dp *DeductionParser) buildDeduction(record []string, parseCtx *ParseContext) (*models.Deduction, *ParseError) {
	amountCol := dp.config.GetColumnName(FieldAmount)
	dateCol := dp.config.GetColumnName(FieldDate)

	amountStr := dp.FieldValue(record, parseCtx, amountCol)
	amount, err := models.ParseOptionalDecimal(amountStr)
	if err != nil {
		return nil, fieldError(parseCtx, errors.CodeInvalidAmount, amountCol, amountStr, err)
	}

	dateStr := dp.FieldValue(record, parseCtx, dateCol)
	date, err := models.ParseOptionalDate(dateStr)
	if err != nil {
		return nil, fieldError(parseCtx, errors.CodeInvalidDate, dateCol, dateStr, err)
	}

	return &models.Deduction{
		ID:              dp.FieldValue(record, parseCtx, dp.config.GetColumnName(FieldID)),
		Amount:          amount,
		CustomerID:      dp.FieldValue(record, parseCtx, dp.config.GetColumnName(FieldCustomer)),
		DeductionDate:   date,
		ReferenceNumber: dp.FieldValue(record, parseCtx, dp.config.GetColumnName(FieldReference)),
		Description:     dp.FieldValue(record, parseCtx, dp.config.GetColumnName(FieldDescription)),
	}, nil
}

// fieldError wraps a cell-level failure into a row-level ParseError
func fieldError(parseCtx *ParseContext, code errors.ErrorCode, column, value string, err error) *ParseError {
	cause := errors.ValidationError(code, column, value, err).
		WithContext("file", parseCtx.Source).
		WithContext("line", parseCtx.LineNumber)

	return &ParseError{
		Line:    parseCtx.LineNumber,
		Field:   column,
		Value:   value,
		Message: cause.Message,
		Err:     cause,
	}
}
