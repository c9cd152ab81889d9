package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/internal/reporter"
	"deduction-matching-service/internal/store"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// inputFlags select where deductions and candidates come from and where the report goes
type inputFlags struct {
	deductions string
	candidates string
	customer   string
	from       string
	to         string
	limit      int
	format     string
	output     string
	withReport bool
}

func (f *inputFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.deductions, "deductions", "d", "", "deductions file (.csv or .json)")
	flags.StringVarP(&f.candidates, "candidates", "c", "", "candidate transactions file (.csv or .json)")
	flags.String("database-url", "", "load deductions and candidates from Postgres")
	flags.StringVar(&f.customer, "customer", "", "only deductions of this customer")
	flags.StringVar(&f.from, "from", "", "only deductions dated on or after (YYYY-MM-DD)")
	flags.StringVar(&f.to, "to", "", "only deductions dated on or before (YYYY-MM-DD)")
	flags.IntVar(&f.limit, "limit", 0, "maximum number of deductions (0 = no limit)")

	if f.withReport {
		flags.StringVarP(&f.format, "format", "f", "console", "output format: console, json, csv")
		flags.StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	}
}

// validate checks the flag combination before any data is loaded
func (f *inputFlags) validate(databaseURL string) error {
	hasFiles := f.deductions != "" || f.candidates != ""
	switch {
	case hasFiles && (f.deductions == "" || f.candidates == ""):
		return errors.ConfigurationError(errors.CodeMissingConfig, "input", nil,
			fmt.Errorf("--deductions and --candidates must be given together")).
			WithSuggestion("Pass both files, or use --database-url")
	case !hasFiles && databaseURL == "":
		return errors.ConfigurationError(errors.CodeMissingConfig, "input", nil,
			fmt.Errorf("no input configured")).
			WithSuggestion("Pass --deductions and --candidates, or --database-url")
	}

	if f.withReport {
		if _, err := reporter.ParseFormat(f.format); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "format", f.format, err)
		}
		if f.output != "" {
			dir := filepath.Dir(f.output)
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return errors.FileError(errors.CodeDirectoryError, dir, fmt.Errorf("output directory does not exist"))
			}
		}
	}

	if _, err := f.filter(); err != nil {
		return err
	}
	return nil
}

func (f *inputFlags) filter() (store.Filter, error) {
	filter := store.Filter{CustomerID: strings.TrimSpace(f.customer), Limit: f.limit}

	var err error
	if filter.From, err = parseDateFlag("from", f.from); err != nil {
		return filter, err
	}
	if filter.To, err = parseDateFlag("to", f.to); err != nil {
		return filter, err
	}

	return filter, filter.Validate()
}

func parseDateFlag(name, value string) (*time.Time, error) {
	date, err := models.ParseOptionalDate(value)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidDate, name, value, err).
			WithSuggestion("Use YYYY-MM-DD")
	}
	return date, nil
}

// openSource prefers files over the database when both are configured
func (a *app) openSource(ctx context.Context, in *inputFlags) (store.Source, error) {
	if in.deductions != "" {
		a.log.WithFields(logger.Fields{
			"deductions": in.deductions,
			"candidates": in.candidates,
		}).Debug("Using file source")
		return store.NewFileSource(in.deductions, in.candidates), nil
	}

	a.log.Debug("Using Postgres source")
	return store.NewPostgresSource(ctx, a.cfg.PostgresConfig())
}

// writeReport renders result to --output or stdout
func (a *app) writeReport(cmd *cobra.Command, in *inputFlags, result interface{}) error {
	reportConfig, err := a.cfg.ReportConfig(in.format)
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, a.log)
	if err != nil {
		return err
	}

	if in.output != "" {
		return generator.WriteReportFile(result, in.output)
	}
	return generator.GenerateReportSafely(result, cmd.OutOrStdout())
}

// thresholdFlags override the configured thresholds for one invocation
type thresholdFlags struct {
	autoApprove   int
	requireReview int
	reject        int
}

func (f *thresholdFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.autoApprove, "auto-approve", models.DefaultAutoApprove, "auto-approve threshold (0-100)")
	flags.IntVar(&f.requireReview, "require-review", models.DefaultRequireReview, "manual review threshold (0-100)")
	flags.IntVar(&f.reject, "reject", models.DefaultReject, "reject floor (0-100)")
}

// update returns only the thresholds set on the command line
func (f *thresholdFlags) update(cmd *cobra.Command) models.ThresholdUpdate {
	var u models.ThresholdUpdate
	if cmd.Flags().Changed("auto-approve") {
		u.AutoApprove = &f.autoApprove
	}
	if cmd.Flags().Changed("require-review") {
		u.RequireReview = &f.requireReview
	}
	if cmd.Flags().Changed("reject") {
		u.Reject = &f.reject
	}
	return u
}

// applyThresholds overlays the flag thresholds on the loaded configuration
func (a *app) applyThresholds(cmd *cobra.Command, f *thresholdFlags) error {
	update := f.update(cmd)
	if update.IsEmpty() {
		return nil
	}
	return a.cfg.ApplyThresholds(update)
}
