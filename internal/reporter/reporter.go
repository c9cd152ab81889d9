// Package reporter renders batch match results and review queues.
//
// Supported output formats:
//   - Console: human-readable summary plus one aligned line per deduction
//   - JSON: the result document as served by the HTTP API
//   - CSV: one row per deduction for spreadsheet review
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:           reporter.FormatCSV,
//		IncludeBreakdown: true,
//		CSVDelimiter:     ',',
//		CSVHeaders:       true,
//		TableMaxWidth:    120,
//	})
//	err = generator.GenerateBatchReport(batch, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"deduction-matching-service/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseFormat converts a flag value into an OutputFormat
func ParseFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format %q (expected console, json or csv)", s)
	}
	return f, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeBreakdown adds the per-factor scores to console and CSV output
	IncludeBreakdown bool `json:"include_breakdown"`
	// IncludeCandidates lists the ranked runner-up candidates under each console line
	IncludeCandidates bool `json:"include_candidates"`
	// SortByConfidence orders console and CSV rows by descending confidence instead of input order
	SortByConfidence bool `json:"sort_by_confidence"`
	// MaxItems caps the console lines; zero means no limit
	MaxItems int `json:"max_items"`

	TableMaxWidth int `json:"table_max_width"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeBreakdown:  true,
		IncludeCandidates: false,
		SortByConfidence:  false,
		MaxItems:          0,
		TableMaxWidth:     120,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}

	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reports in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateBatchReport writes a report for a batch match result
func (rg *ReportGenerator) GenerateBatchReport(batch *models.BatchResult, writer io.Writer) error {
	if batch == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.consoleBatch(batch, writer)
	case FormatJSON:
		return writeJSON(batch, writer)
	case FormatCSV:
		return rg.writeCSV(batch.Results, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateQueueReport writes a report for a review queue
func (rg *ReportGenerator) GenerateQueueReport(queue *models.ReviewQueue, writer io.Writer) error {
	if queue == nil {
		return fmt.Errorf("review queue cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.consoleQueue(queue, writer)
	case FormatJSON:
		return writeJSON(queue, writer)
	case FormatCSV:
		return rg.writeCSV(queue.Queue, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) consoleBatch(batch *models.BatchResult, writer io.Writer) error {
	fmt.Fprintf(writer, "DEDUCTION MATCH REPORT\n")
	if batch.BatchID != "" {
		fmt.Fprintf(writer, "Batch: %s\n", batch.BatchID)
	}
	fmt.Fprintf(writer, "Thresholds: auto-approve >= %d, review >= %d, reject < %d\n\n",
		batch.Thresholds.AutoApprove, batch.Thresholds.RequireReview, batch.Thresholds.Reject)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(writer, batch.Total, batch.Matched, batch.AutoApproved, batch.NeedsReview, batch.PossibleMatches, batch.Unmatched)
	fmt.Fprintf(writer, "\n")

	if len(batch.Results) > 0 {
		fmt.Fprintf(writer, "=== RESULTS ===\n")
		if err := rg.printResults(batch.Results, writer); err != nil {
			return err
		}
	}
	return nil
}

func (rg *ReportGenerator) consoleQueue(queue *models.ReviewQueue, writer io.Writer) error {
	s := queue.Summary
	fmt.Fprintf(writer, "REVIEW QUEUE\n\n")
	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Deductions:    %d\n", s.Total)
	fmt.Fprintf(writer, "Auto-approved: %d (%.1f%%)\n", s.AutoApproved, percentage(s.AutoApproved, s.Total))
	fmt.Fprintf(writer, "Needs review:  %d (%.1f%%)\n", s.NeedsReview, percentage(s.NeedsReview, s.Total))
	fmt.Fprintf(writer, "Unmatched:     %d (%.1f%%)\n\n", s.Unmatched, percentage(s.Unmatched, s.Total))

	if len(queue.Queue) == 0 {
		fmt.Fprintf(writer, "Nothing to review.\n")
		return nil
	}

	fmt.Fprintf(writer, "=== QUEUE (%d) ===\n", len(queue.Queue))
	return rg.printResults(queue.Queue, writer)
}

func (rg *ReportGenerator) printSummary(writer io.Writer, total, matched, auto, review, possible, unmatched int) {
	fmt.Fprintf(writer, "Deductions:      %d\n", total)
	fmt.Fprintf(writer, "Matched:         %d (%.1f%%)\n", matched, percentage(matched, total))
	fmt.Fprintf(writer, "  Auto-approve:  %d\n", auto)
	fmt.Fprintf(writer, "  Review:        %d\n", review)
	fmt.Fprintf(writer, "  Possible:      %d\n", possible)
	fmt.Fprintf(writer, "Unmatched:       %d (%.1f%%)\n", unmatched, percentage(unmatched, total))
}

func (rg *ReportGenerator) printResults(results []*models.MatchResult, writer io.Writer) error {
	rows := rg.ordered(results)

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	header := "DEDUCTION\tTRANSACTION\tCONFIDENCE\tRECOMMENDATION"
	if rg.config.IncludeBreakdown {
		header += "\tAMT\tCUST\tDATE\tREF\tDESC"
	}
	fmt.Fprintln(tw, header+"\tNOTE")

	for i, r := range rows {
		if rg.config.MaxItems > 0 && i >= rg.config.MaxItems {
			fmt.Fprintf(tw, "... and %d more\n", len(rows)-rg.config.MaxItems)
			break
		}

		line := fmt.Sprintf("%s\t%s\t%d\t%s", orDash(r.DeductionID), orDash(r.TransactionID), r.Confidence, r.Recommendation)
		if rg.config.IncludeBreakdown {
			line += "\t" + strings.Join(breakdownCells(r.Breakdown), "\t")
		}
		fmt.Fprintln(tw, line+"\t"+rg.truncate(r.Reason))

		if rg.config.IncludeCandidates && len(r.AllCandidates) > 1 {
			for _, c := range r.AllCandidates[1:] {
				if c.Transaction == nil {
					continue
				}
				fmt.Fprintf(tw, "\t  %s\t%d\t\n", c.Transaction.ID, c.Score)
			}
		}
	}

	return tw.Flush()
}

func (rg *ReportGenerator) writeCSV(results []*models.MatchResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{"deduction_id", "matched", "confidence", "recommendation", "transaction_id"}
		if rg.config.IncludeBreakdown {
			headers = append(headers, "amount_score", "customer_score", "date_score", "reference_score", "description_score")
		}
		headers = append(headers, "candidates", "reason")
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, r := range rg.ordered(results) {
		record := []string{
			r.DeductionID,
			strconv.FormatBool(r.Matched),
			strconv.Itoa(r.Confidence),
			r.Recommendation.String(),
			r.TransactionID,
		}
		if rg.config.IncludeBreakdown {
			cells := breakdownCells(r.Breakdown)
			for i := range cells {
				if cells[i] == "-" {
					cells[i] = ""
				}
			}
			record = append(record, cells...)
		}
		record = append(record, strconv.Itoa(len(r.AllCandidates)), r.Reason)

		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write result record for %s: %w", r.DeductionID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func writeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// ordered returns the results to print; the input slice is never reordered
func (rg *ReportGenerator) ordered(results []*models.MatchResult) []*models.MatchResult {
	rows := make([]*models.MatchResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			rows = append(rows, r)
		}
	}
	if rg.config.SortByConfidence {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Confidence > rows[j].Confidence
		})
	}
	return rows
}

func (rg *ReportGenerator) truncate(s string) string {
	limit := rg.config.TableMaxWidth / 2
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func breakdownCells(b *models.ScoreBreakdown) []string {
	if b == nil {
		return []string{"-", "-", "-", "-", "-"}
	}
	return []string{
		strconv.Itoa(b.Amount),
		strconv.Itoa(b.Customer),
		strconv.Itoa(b.Date),
		strconv.Itoa(b.Reference),
		strconv.Itoa(b.Description),
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
