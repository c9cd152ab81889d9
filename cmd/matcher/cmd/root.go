// Package cmd implements the matcher command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deduction-matching-service/cmd/matcher/config"
	"deduction-matching-service/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// app carries the state shared by one command tree
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool

	cfg *config.Config
	log logger.Logger
}

// newRootCmd builds the command tree. Each call gets its own viper instance.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "matcher",
		Short: "Deduction matching and confidence scoring",
		Long: `Matcher scores customer deductions against candidate transactions and
recommends auto-approval, manual review or rejection for the best match.

Examples:
  matcher match --deductions deductions.csv --candidates transactions.json
  matcher queue --database-url postgres://localhost/ledger --customer C-1001 --from 2025-01-01
  matcher serve --port 8080 --database-url postgres://localhost/ledger
  matcher thresholds --auto-approve 90`,
		Version:       versionString(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")

	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newMatchCmd(a),
		newQueueCmd(a),
		newServeCmd(a),
		newThresholdsCmd(a),
	)

	return root, a
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context, args []string) int {
	root, a := newRootCmd()
	if args != nil {
		root.SetArgs(args)
	}
	err := root.ExecuteContext(ctx)
	return NewCLIErrorHandler(root.ErrOrStderr(), a.verbose).HandleError(err)
}

// setup loads configuration and installs the process logger. bindings maps
// config keys to flags of the running command.
func (a *app) setup(cmd *cobra.Command, bindings map[string]string) error {
	for key, flag := range bindings {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}

	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}
	if a.verbose && !cmd.Flags().Changed("log-level") {
		a.v.Set("log.level", string(logger.DebugLevel))
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}

	loggerConfig := cfg.LoggerConfig()
	if loggerConfig.Output == logger.StderrOutput {
		loggerConfig.Writer = cmd.ErrOrStderr()
	}
	log, err := logger.NewLogger(loggerConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)

	a.cfg = cfg
	a.log = log.WithComponent("cli")

	if a.cfgFile != "" {
		a.log.WithField("config_file", a.v.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func versionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
