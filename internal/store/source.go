// Package store provides the data sources a matching run can load deductions
// and candidate transactions from.
//
// Two sources are available: FileSource reads CSV or JSON files through the
// parsers package, and PostgresSource queries a Postgres database through a
// pgx connection pool. Both honour the same Filter (customer, date window,
// limit), so callers can swap one for the other without changing the run.
//
// Example usage:
//
//	src := store.NewFileSource("deductions.csv", "candidates.json")
//	defer src.Close()
//
//	filter := store.Filter{CustomerID: "C1"}
//	deductions, err := src.Deductions(ctx, filter)
//	candidates, err := src.Candidates(ctx, filter)
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/internal/parsers"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// Source loads the records for a matching run.
//
//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=source.go Source
type Source interface {
	Deductions(ctx context.Context, filter Filter) ([]*models.Deduction, error)
	Candidates(ctx context.Context, filter Filter) ([]*models.Transaction, error)
	Close() error
}

// Filter narrows the records a Source returns. Zero values mean no restriction.
type Filter struct {
	CustomerID string     `json:"customerId,omitempty" form:"customerId"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	Limit      int        `json:"limit,omitempty" form:"limit"`

	// IncludeUndated lets records without a date through the date window
	IncludeUndated bool `json:"includeUndated,omitempty"`
}

// Validate rejects inverted date windows and negative limits
func (f Filter) Validate() error {
	if f.Limit < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "limit", f.Limit,
			fmt.Errorf("limit cannot be negative"))
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return errors.ValidationError(errors.CodeOutOfRange, "from", models.FormatDate(f.From),
			fmt.Errorf("from date %s is after to date %s", models.FormatDate(f.From), models.FormatDate(f.To))).
			WithSuggestion("swap the from and to dates")
	}
	return nil
}

// IsEmpty reports whether the filter restricts nothing
func (f Filter) IsEmpty() bool {
	return f.CustomerID == "" && f.From == nil && f.To == nil && f.Limit == 0
}

func (f Filter) String() string {
	var parts []string
	if f.CustomerID != "" {
		parts = append(parts, "customer="+f.CustomerID)
	}
	if f.From != nil {
		parts = append(parts, "from="+models.FormatDate(f.From))
	}
	if f.To != nil {
		parts = append(parts, "to="+models.FormatDate(f.To))
	}
	if f.IncludeUndated && (f.From != nil || f.To != nil) {
		parts = append(parts, "undated")
	}
	if f.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", f.Limit))
	}
	if len(parts) == 0 {
		return "Filter{all}"
	}
	return "Filter{" + strings.Join(parts, " ") + "}"
}

// matches applies the customer and date window to one record. A record without
// a date falls inside a window only when IncludeUndated is set.
func (f Filter) matches(customerID string, date *time.Time) bool {
	if f.CustomerID != "" && strings.TrimSpace(customerID) != f.CustomerID {
		return false
	}
	if f.From == nil && f.To == nil {
		return true
	}
	if date == nil {
		return f.IncludeUndated
	}
	day := models.CalendarDay(*date)
	if f.From != nil && day.Before(models.CalendarDay(*f.From)) {
		return false
	}
	if f.To != nil && day.After(models.CalendarDay(*f.To)) {
		return false
	}
	return true
}

// FileSource reads deductions and candidates from CSV or JSON files
type FileSource struct {
	DeductionsPath string
	CandidatesPath string
	logger         logger.Logger
}

// NewFileSource creates a FileSource; the file format is picked by extension
func NewFileSource(deductionsPath, candidatesPath string) *FileSource {
	return &FileSource{
		DeductionsPath: deductionsPath,
		CandidatesPath: candidatesPath,
		logger:         logger.GetGlobalLogger().WithComponent("file_source"),
	}
}

// Deductions loads the deductions file and applies the filter
func (fs *FileSource) Deductions(ctx context.Context, filter Filter) ([]*models.Deduction, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if fs.DeductionsPath == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "deductions", "", fmt.Errorf("no deductions file configured"))
	}

	all, skipped, err := parsers.LoadDeductions(ctx, fs.DeductionsPath)
	if err != nil {
		return nil, err
	}
	fs.logSkipped(fs.DeductionsPath, skipped)

	var out []*models.Deduction
	for _, d := range all {
		if d == nil || !filter.matches(d.CustomerID, d.DeductionDate) {
			continue
		}
		out = append(out, d)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	fs.logger.WithFields(logger.Fields{
		"file_path": fs.DeductionsPath,
		"loaded":    len(all),
		"selected":  len(out),
		"filter":    filter.String(),
	}).Debug("Loaded deductions")
	return out, nil
}

// Candidates loads the candidates file and applies the filter
func (fs *FileSource) Candidates(ctx context.Context, filter Filter) ([]*models.Transaction, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if fs.CandidatesPath == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "candidates", "", fmt.Errorf("no candidates file configured"))
	}

	all, skipped, err := parsers.LoadTransactions(ctx, fs.CandidatesPath)
	if err != nil {
		return nil, err
	}
	fs.logSkipped(fs.CandidatesPath, skipped)

	var out []*models.Transaction
	for _, t := range all {
		if t == nil || !filter.matches(t.CustomerID, t.TransactionDate) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	fs.logger.WithFields(logger.Fields{
		"file_path": fs.CandidatesPath,
		"loaded":    len(all),
		"selected":  len(out),
		"filter":    filter.String(),
	}).Debug("Loaded candidates")
	return out, nil
}

// logSkipped reports the rows a load dropped; those records never reach matching
func (fs *FileSource) logSkipped(path string, skipped *errors.ErrorSummary) {
	if skipped == nil || skipped.Total == 0 {
		return
	}

	samples := make([]string, 0, len(skipped.SampleErrors))
	for _, err := range skipped.SampleErrors {
		samples = append(samples, err.Error())
	}
	fs.logger.WithFields(logger.Fields{
		"file_path":     path,
		"skipped":       skipped.Total,
		"by_code":       skipped.ByCode,
		"sample_errors": samples,
	}).Warn("Skipped invalid rows: " + skipped.Error())
}

// Close is a no-op; files are opened per load
func (fs *FileSource) Close() error {
	return nil
}
