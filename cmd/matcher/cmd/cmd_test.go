package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/pkg/errors"
)

const testDeductions = `id,amount,customerId,deductionDate,referenceNumber,description
D1,1000.00,C1,2025-01-10,INV-1001,promo allowance
D2,1015.00,C1,2025-01-10,,
D3,50.00,C9,2025-01-10,,
`

const testCandidates = `[
  {"id": "T1", "netAmount": "1000.00", "customerId": "C1", "transactionDate": "2025-01-10",
   "transactionNumber": "INV-1001", "description": "promo allowance"}
]`

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	deductions := filepath.Join(dir, "deductions.csv")
	candidates := filepath.Join(dir, "candidates.json")
	if err := os.WriteFile(deductions, []byte(testDeductions), 0644); err != nil {
		t.Fatalf("failed to write deductions: %v", err)
	}
	if err := os.WriteFile(candidates, []byte(testCandidates), 0644); err != nil {
		t.Fatalf("failed to write candidates: %v", err)
	}
	return deductions, candidates
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, _ := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMatchCommand_JSON(t *testing.T) {
	deductions, candidates := writeInputs(t)

	out, err := run(t, "match", "--deductions", deductions, "--candidates", candidates, "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var batch models.BatchResult
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("output is not a batch result: %v\n%s", err, out)
	}

	if batch.Total != 3 || batch.Matched != 2 || batch.AutoApproved != 1 || batch.PossibleMatches != 1 || batch.Unmatched != 1 {
		t.Errorf("unexpected counters: %+v", batch)
	}
	if batch.Results[0].DeductionID != "D1" || batch.Results[0].Confidence != 100 {
		t.Errorf("expected D1 to match with 100, got %s", batch.Results[0])
	}
	if batch.Results[1].Recommendation != models.RecommendationPossibleMatch {
		t.Errorf("expected D2 possible_match, got %s", batch.Results[1].Recommendation)
	}
}

func TestMatchCommand_Console(t *testing.T) {
	deductions, candidates := writeInputs(t)

	out, err := run(t, "match", "-d", deductions, "-c", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"DEDUCTION MATCH REPORT", "D1", "T1", "auto_approve"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestMatchCommand_Filters(t *testing.T) {
	deductions, candidates := writeInputs(t)

	out, err := run(t, "match", "-d", deductions, "-c", candidates, "--customer", "C1", "--limit", "1", "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var batch models.BatchResult
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if batch.Total != 1 || batch.Results[0].DeductionID != "D1" {
		t.Errorf("expected only D1, got %+v", batch.Results)
	}
}

func TestMatchCommand_ThresholdOverride(t *testing.T) {
	deductions, candidates := writeInputs(t)

	out, err := run(t, "match", "-d", deductions, "-c", candidates, "--reject", "50", "--require-review", "55", "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var batch models.BatchResult
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if batch.Thresholds.Reject != 50 || batch.Thresholds.RequireReview != 55 {
		t.Errorf("overrides not applied: %s", batch.Thresholds)
	}
	if batch.NeedsReview != 1 {
		t.Errorf("expected D2 to need review at 60 with require-review 55, got %d", batch.NeedsReview)
	}
}

func TestMatchCommand_Errors(t *testing.T) {
	deductions, candidates := writeInputs(t)

	tests := []struct {
		name     string
		args     []string
		wantCode errors.ErrorCode
	}{
		{
			name:     "no input",
			args:     []string{"match"},
			wantCode: errors.CodeMissingConfig,
		},
		{
			name:     "deductions without candidates",
			args:     []string{"match", "-d", deductions},
			wantCode: errors.CodeMissingConfig,
		},
		{
			name:     "invalid threshold override",
			args:     []string{"match", "-d", deductions, "-c", candidates, "--auto-approve", "70"},
			wantCode: errors.CodeInvariantViolation,
		},
		{
			name:     "inverted date window",
			args:     []string{"match", "-d", deductions, "-c", candidates, "--from", "2025-02-01", "--to", "2025-01-01"},
			wantCode: errors.CodeOutOfRange,
		},
		{
			name:     "unparseable date",
			args:     []string{"match", "-d", deductions, "-c", candidates, "--from", "yesterday"},
			wantCode: errors.CodeInvalidDate,
		},
		{
			name:     "unknown format",
			args:     []string{"match", "-d", deductions, "-c", candidates, "--format", "xml"},
			wantCode: errors.CodeInvalidConfig,
		},
		{
			name:     "missing output directory",
			args:     []string{"match", "-d", deductions, "-c", candidates, "-o", "/no/such/dir/report.txt"},
			wantCode: errors.CodeDirectoryError,
		},
		{
			name:     "missing candidates file",
			args:     []string{"match", "-d", deductions, "-c", filepath.Join(t.TempDir(), "absent.json")},
			wantCode: errors.CodeSourceFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !errors.HasCode(err, tt.wantCode) {
				t.Errorf("expected code %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestQueueCommand(t *testing.T) {
	deductions, candidates := writeInputs(t)

	out, err := run(t, "queue", "-d", deductions, "-c", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "REVIEW QUEUE") || !strings.Contains(out, "D2") {
		t.Errorf("unexpected queue output:\n%s", out)
	}

	output := filepath.Join(t.TempDir(), "queue.csv")
	if _, err := run(t, "queue", "-d", deductions, "-c", candidates, "--format", "csv", "--output", output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[1], "D2,true,60,possible_match,T1") {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestThresholdsCommand(t *testing.T) {
	out, err := run(t, "thresholds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "auto_approve    score >= 95") || !strings.Contains(out, "no_match        score <  60") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = run(t, "thresholds", "--auto-approve", "90", "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var thresholds models.Thresholds
	if err := json.Unmarshal([]byte(out), &thresholds); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	want := models.Thresholds{AutoApprove: 90, RequireReview: 80, Reject: 60}
	if thresholds != want {
		t.Errorf("expected %s, got %s", want, thresholds)
	}

	_, err = run(t, "thresholds", "--reject", "90")
	if !errors.HasCode(err, errors.CodeInvariantViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
}

func TestThresholdsCommand_ConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matcher.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  auto_approve: 92\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("MATCHER_THRESHOLDS_REJECT", "45")

	out, err := run(t, "thresholds", "--config", path, "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var thresholds models.Thresholds
	if err := json.Unmarshal([]byte(out), &thresholds); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	want := models.Thresholds{AutoApprove: 92, RequireReview: 80, Reject: 45}
	if thresholds != want {
		t.Errorf("expected %s, got %s", want, thresholds)
	}
}

func TestExecute_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "success", args: []string{"thresholds", "--log-level", "error"}, want: 0},
		{name: "configuration error", args: []string{"thresholds", "--reject", "90", "--log-level", "error"}, want: 4},
		{name: "unknown command", args: []string{"frobnicate"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Execute(context.Background(), tt.args); got != tt.want {
				t.Errorf("expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		verbose    bool
		wantCode   int
		wantOutput []string
	}{
		{
			name:     "nil error",
			err:      nil,
			wantCode: 0,
		},
		{
			name: "engine error with suggestion",
			err: errors.ConfigurationError(errors.CodeInvariantViolation, "thresholds", "x", fmt.Errorf("reject too high")).
				WithSuggestion("lower --reject"),
			verbose:    true,
			wantCode:   4,
			wantOutput: []string{"Context:", "setting: thresholds", "Suggestion: lower --reject", "Configuration error help", "Underlying error: reject too high"},
		},
		{
			name:       "file error",
			err:        errors.FileError(errors.CodeFileNotFound, "/tmp/x.csv", os.ErrNotExist),
			wantCode:   2,
			wantOutput: []string{"File error help"},
		},
		{
			name:       "plain not-exist error",
			err:        fmt.Errorf("open x: %w", os.ErrNotExist),
			wantCode:   2,
			wantOutput: []string{"File not found"},
		},
		{
			name:       "generic error",
			err:        fmt.Errorf("something broke"),
			wantCode:   1,
			wantOutput: []string{"Error: something broke", "--verbose"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewCLIErrorHandler(&buf, tt.verbose)

			if got := handler.HandleError(tt.err); got != tt.wantCode {
				t.Errorf("expected exit code %d, got %d", tt.wantCode, got)
			}
			for _, want := range tt.wantOutput {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}
