package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"deduction-matching-service/pkg/errors"
)

func newThresholdsCmd(a *app) *cobra.Command {
	th := &thresholdFlags{}
	var format string

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Print and validate the effective thresholds",
		Long: `Thresholds resolves the classification thresholds from defaults, the config
file, MATCHER_THRESHOLDS_* variables and the flags below, validates them and
prints the result. It exits non-zero when the combination is invalid.

Examples:
  matcher thresholds
  matcher thresholds --auto-approve 90 --reject 50 --format json`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, nil); err != nil {
				return err
			}
			return a.applyThresholds(cmd, th)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.cfg.Thresholds
			out := cmd.OutOrStdout()

			switch strings.ToLower(format) {
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(t)
			case "console", "":
				fmt.Fprintf(out, "auto_approve    score >= %d\n", t.AutoApprove)
				fmt.Fprintf(out, "manual_review   score >= %d\n", t.RequireReview)
				fmt.Fprintf(out, "possible_match  score >= %d\n", t.Reject)
				fmt.Fprintf(out, "no_match        score <  %d\n", t.Reject)
				return nil
			default:
				return errors.ConfigurationError(errors.CodeInvalidConfig, "format", format,
					fmt.Errorf("expected console or json"))
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "console", "output format: console, json")
	th.register(cmd)
	return cmd
}
