package cmd

import (
	"github.com/spf13/cobra"

	"deduction-matching-service/internal/api"
	"deduction-matching-service/internal/reconciler"
	"deduction-matching-service/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	in := &inputFlags{}
	th := &thresholdFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes matching over HTTP. With --database-url (or --deductions and
--candidates) GET /review-queue loads data from that source; without one the
request-body endpoints still work.

Examples:
  matcher serve --port 8080
  matcher serve --port 8080 --database-url postgres://localhost/ledger`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, map[string]string{
				"database.url": "database-url",
				"server.port":  "port",
			}); err != nil {
				return err
			}
			return a.applyThresholds(cmd, th)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd, in)
		},
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", api.DefaultServerConfig().Port, "listen port")
	flags.String("database-url", "", "Postgres source for GET /review-queue")
	flags.StringVarP(&in.deductions, "deductions", "d", "", "deductions file for GET /review-queue")
	flags.StringVarP(&in.candidates, "candidates", "c", "", "candidates file for GET /review-queue")
	th.register(cmd)

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, in *inputFlags) error {
	ctx := cmd.Context()

	service, err := reconciler.NewMatchingService(a.cfg.ServiceConfig())
	if err != nil {
		return err
	}

	var source store.Source
	if in.deductions != "" || in.candidates != "" || a.cfg.Database.URL != "" {
		if err := in.validate(a.cfg.Database.URL); err != nil {
			return err
		}
		source, err = a.openSource(ctx, in)
		if err != nil {
			return err
		}
		defer func() {
			if err := source.Close(); err != nil {
				a.log.WithError(err).Warn("Failed to close source")
			}
		}()
	}

	server, err := api.NewServer(a.cfg.ServerConfig(), service, source)
	if err != nil {
		return err
	}

	a.log.WithField("thresholds", a.cfg.Thresholds.String()).Info("Matching service ready")
	return server.Start(ctx)
}
