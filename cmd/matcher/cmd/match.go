package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/internal/reconciler"
	"deduction-matching-service/pkg/logger"
)

func newMatchCmd(a *app) *cobra.Command {
	in := &inputFlags{withReport: true}
	th := &thresholdFlags{}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match deductions against candidate transactions",
		Long: `Match scores every deduction against the candidate transactions and prints
the best match, its confidence and a recommendation per deduction.

Inputs come from --deductions/--candidates files (CSV or JSON) or from Postgres
via --database-url. Candidates are loaded for the same customer with the date
window widened by 30 days on each side.

Examples:
  matcher match --deductions deductions.csv --candidates transactions.csv
  matcher match -d deductions.json -c candidates.json --format json --output batch.json
  matcher match --database-url postgres://localhost/ledger --customer C-1001 \
    --from 2025-01-01 --to 2025-01-31 --auto-approve 90`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd, in, th)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMatch(cmd, in)
		},
	}

	in.register(cmd)
	th.register(cmd)
	return cmd
}

// prepare loads configuration, applies flag overrides and validates the inputs
func (a *app) prepare(cmd *cobra.Command, in *inputFlags, th *thresholdFlags) error {
	if err := a.setup(cmd, map[string]string{"database.url": "database-url"}); err != nil {
		return err
	}
	if err := a.applyThresholds(cmd, th); err != nil {
		return err
	}
	return in.validate(a.cfg.Database.URL)
}

func (a *app) runMatch(cmd *cobra.Command, in *inputFlags) error {
	ctx := cmd.Context()

	runner, closeSource, err := a.newRunner(cmd, in)
	if err != nil {
		return err
	}
	defer closeSource()

	filter, err := in.filter()
	if err != nil {
		return err
	}

	var batch *models.BatchResult
	err = logger.TimedOperation("match", a.log, func() error {
		var runErr error
		batch, runErr = runner.Run(ctx, filter)
		return runErr
	})
	if err != nil {
		return err
	}

	if err := a.writeReport(cmd, in, batch); err != nil {
		return err
	}

	if a.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nMatched %d of %d deductions (%d auto-approve, %d review, %d possible, %d unmatched).\n",
			batch.Matched, batch.Total, batch.AutoApproved, batch.NeedsReview, batch.PossibleMatches, batch.Unmatched)
	}
	return nil
}

// newRunner opens the configured source and builds a runner over it
func (a *app) newRunner(cmd *cobra.Command, in *inputFlags) (*reconciler.Runner, func(), error) {
	service, err := reconciler.NewMatchingService(a.cfg.ServiceConfig())
	if err != nil {
		return nil, nil, err
	}

	source, err := a.openSource(cmd.Context(), in)
	if err != nil {
		return nil, nil, err
	}

	closeSource := func() {
		if err := source.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close source")
		}
	}
	return reconciler.NewRunner(service, source), closeSource, nil
}
