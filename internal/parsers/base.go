// Package parsers loads deductions and candidate transactions from CSV and JSON files.
//
// CSV parsing is header driven: columns are looked up by name (case-insensitive,
// with configurable aliases), so column order does not matter and optional columns
// may be left out entirely. Empty cells become absent values on the parsed record.
// Rows that cannot be parsed are reported in ParseStats and skipped; only problems
// with the file itself (missing file, bad encoding, missing required header) fail
// the whole parse.
//
// Example usage:
//
//	parser, err := parsers.NewDeductionParser(nil)
//	deductions, stats, err := parser.ParseFile(ctx, "deductions.csv")
//	if stats.HasErrors() {
//		log.Warn(stats.Summary("deductions.csv").Error())
//	}
//
//	candidates, skipped, err := parsers.LoadTransactions(ctx, "candidates.json")
package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// ParseError represents an error that occurred while parsing one CSV row
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1 << 20,
		ValidateEncoding: true,
	}
}

// BaseParser provides the CSV mechanics shared by the record parsers
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("csv_parser"),
	}
}

// ParseContext holds state during one parsing operation
type ParseContext struct {
	Source     string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context for the named source
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// Err returns the context error once parsing has been cancelled
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// ColumnIndex returns the index of a column by name, or -1 if not found.
// Lookups are case-insensitive.
func (pc *ParseContext) ColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[strings.ToLower(strings.TrimSpace(name))]; exists {
		return index
	}
	return -1
}

// OpenFile opens path and returns a configured csv.Reader over it
func (bp *BaseParser) OpenFile(path string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", path).Debug("Opening CSV file")

	file, err := os.Open(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, nil, errors.FileError(errors.CodeDirectoryError, path, err)
		}
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, path); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	return file, bp.NewReader(file), nil
}

// NewReader returns a csv.Reader over r configured from the parse config
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	return reader
}

func (bp *BaseParser) validateEncoding(r io.Reader, source string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), bp.config.MaxFieldSize+64*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if lineNum == 1 {
			line = bytes.TrimPrefix(line, utf8BOM)
		}
		if !utf8.Valid(line) {
			return errors.ParseError(
				errors.CodeEncodingError,
				source,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, source, err)
	}
	return nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadHeaders reads the header row and checks that every required column is present.
// Without a header row, defaults are used as the column layout.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, required, defaults []string) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = append([]string(nil), defaults...)
		bp.buildHeaderMap(parseCtx)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithSuggestion("ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 1, "headers", "", err)
	}

	parseCtx.LineNumber++
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], string(utf8BOM))
	}
	parseCtx.Headers = make([]string, len(headers))
	for i, h := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(h)
	}
	bp.buildHeaderMap(parseCtx)

	var missing []string
	for _, name := range required {
		if parseCtx.ColumnIndex(name) == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.ParseError(
			errors.CodeMissingColumn,
			parseCtx.Source,
			parseCtx.LineNumber,
			strings.Join(missing, ", "),
			"",
			nil,
		).WithContext("available_headers", parseCtx.Headers)
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Read CSV headers")
	return nil
}

func (bp *BaseParser) buildHeaderMap(parseCtx *ParseContext) {
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		key := strings.ToLower(header)
		if _, dup := parseCtx.HeaderMap[key]; !dup {
			parseCtx.HeaderMap[key] = i
		}
	}
}

// ReadRecord returns the next non-empty record, or io.EOF at the end of input
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if err := parseCtx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			parseCtx.LineNumber++
			return nil, err
		}
		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					preview := field
					if len(preview) > 50 {
						preview = preview[:50] + "..."
					}
					return nil, &ParseError{
						Line:    parseCtx.LineNumber,
						Field:   fmt.Sprintf("field_%d", i),
						Value:   preview,
						Message: fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize),
					}
				}
			}
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// FieldValue returns the trimmed value of the named column, or "" when the column
// is absent from the file or the row is short.
func (bp *BaseParser) FieldValue(record []string, parseCtx *ParseContext, name string) string {
	index := parseCtx.ColumnIndex(name)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples error messages
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// Summary converts the row errors into engine errors for source
func (ps *ParseStats) Summary(source string) *errors.ErrorSummary {
	errs := make([]*errors.EngineError, 0, len(ps.Errors))
	for _, pe := range ps.Errors {
		code := errors.CodeInvalidData
		if cause, ok := errors.AsEngineError(pe.Err); ok {
			code = cause.Code
		} else if pe.Field == "record" {
			code = errors.CodeInvalidFormat
		}
		errs = append(errs, errors.ParseError(code, source, pe.Line, pe.Field, pe.Value, pe))
	}
	return errors.NewErrorSummary(errs)
}

// recordBuilder turns one CSV row into a record, or reports why it could not
type recordBuilder[T any] func(record []string, parseCtx *ParseContext) (T, *ParseError)

// parseRecords drives the header and row loop shared by the deduction and transaction parsers
func parseRecords[T any](bp *BaseParser, parseCtx *ParseContext, reader *csv.Reader, required, defaults []string, build recordBuilder[T]) ([]T, *ParseStats, error) {
	stats := NewParseStats()

	if err := bp.ReadHeaders(reader, parseCtx, required, defaults); err != nil {
		return nil, stats, err
	}

	var records []T
	for {
		row, err := bp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctxErr := parseCtx.Err(); ctxErr != nil {
				stats.TotalLines = parseCtx.LineNumber
				return records, stats, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", ctxErr)
			}
			if pe, ok := err.(*ParseError); ok {
				stats.AddError(pe)
				continue
			}
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Field:   "record",
				Message: "malformed CSV record",
				Err:     err,
			})
			// csv.Reader resumes after a malformed row; any other read error ends the input
			if _, malformed := err.(*csv.ParseError); !malformed {
				break
			}
			continue
		}

		stats.RecordsParsed++
		rec, parseErr := build(row, parseCtx)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		records = append(records, rec)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	bp.logger.WithFields(logger.Fields{
		"source":         parseCtx.Source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("CSV parsing completed")

	if stats.HasErrors() {
		bp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Debug("Encountered errors during parsing")
	}

	return records, stats, nil
}
