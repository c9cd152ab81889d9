package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/pkg/logger"
)

func newQueueCmd(a *app) *cobra.Command {
	in := &inputFlags{withReport: true}
	th := &thresholdFlags{}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print the review queue",
		Long: `Queue runs the same matching as 'matcher match' and prints only the
results a person has to confirm: manual_review and possible_match.

Examples:
  matcher queue --deductions deductions.csv --candidates transactions.csv
  matcher queue --database-url postgres://localhost/ledger --customer C-1001 --format csv`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd, in, th)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQueue(cmd, in)
		},
	}

	in.register(cmd)
	th.register(cmd)
	return cmd
}

func (a *app) runQueue(cmd *cobra.Command, in *inputFlags) error {
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

	var queue *models.ReviewQueue
	err = logger.TimedOperation("review_queue", a.log, func() error {
		var runErr error
		queue, runErr = runner.ReviewQueue(ctx, filter)
		return runErr
	})
	if err != nil {
		return err
	}

	if err := a.writeReport(cmd, in, queue); err != nil {
		return err
	}

	if a.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d of %d deductions need review.\n", len(queue.Queue), queue.Summary.Total)
	}
	return nil
}
