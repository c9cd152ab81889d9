// Package config resolves the matcher's effective configuration from defaults,
// an optional config file, MATCHER_* environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"deduction-matching-service/internal/api"
	"deduction-matching-service/internal/matcher"
	"deduction-matching-service/internal/models"
	"deduction-matching-service/internal/reconciler"
	"deduction-matching-service/internal/reporter"
	"deduction-matching-service/internal/store"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. MATCHER_DATABASE_URL
const EnvPrefix = "MATCHER"

// Config is the full configuration of the matcher binary
type Config struct {
	Thresholds models.Thresholds `mapstructure:"thresholds"`
	Matching   MatchingSettings  `mapstructure:"matching"`
	Database   DatabaseSettings  `mapstructure:"database"`
	Server     ServerSettings    `mapstructure:"server"`
	Log        LogSettings       `mapstructure:"log"`
	Report     ReportSettings    `mapstructure:"report"`
}

// MatchingSettings tunes the engine and the batch runner
type MatchingSettings struct {
	MaxConcurrency            int  `mapstructure:"max_concurrency"`
	CandidateConcurrency      int  `mapstructure:"candidate_concurrency"`
	ParallelThreshold         int  `mapstructure:"parallel_threshold"`
	RemoveDuplicateCandidates bool `mapstructure:"remove_duplicate_candidates"`
	Progress                  bool `mapstructure:"progress"`
}

// DatabaseSettings configures the optional Postgres source
type DatabaseSettings struct {
	URL               string        `mapstructure:"url"`
	DeductionsTable   string        `mapstructure:"deductions_table"`
	TransactionsTable string        `mapstructure:"transactions_table"`
	MaxConns          int32         `mapstructure:"max_conns"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
}

// ServerSettings configures matcher serve
type ServerSettings struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// LogSettings configures pkg/logger
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	File   string `mapstructure:"file"`
}

// ReportSettings configures the report renderer
type ReportSettings struct {
	IncludeBreakdown  bool `mapstructure:"include_breakdown"`
	IncludeCandidates bool `mapstructure:"include_candidates"`
	SortByConfidence  bool `mapstructure:"sort_by_confidence"`
	MaxItems          int  `mapstructure:"max_items"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal even when no config file sets them.
func SetDefaults(v *viper.Viper) {
	thresholds := models.DefaultThresholds()
	v.SetDefault("thresholds.auto_approve", thresholds.AutoApprove)
	v.SetDefault("thresholds.require_review", thresholds.RequireReview)
	v.SetDefault("thresholds.reject", thresholds.Reject)

	service := reconciler.DefaultConfig()
	engine := matcher.DefaultMatchingConfig()
	v.SetDefault("matching.max_concurrency", service.MaxConcurrency)
	v.SetDefault("matching.candidate_concurrency", engine.CandidateConcurrency)
	v.SetDefault("matching.parallel_threshold", engine.ParallelThreshold)
	v.SetDefault("matching.remove_duplicate_candidates", service.Preprocessing.RemoveDuplicates)
	v.SetDefault("matching.progress", service.ProgressReporting)

	db := store.DefaultPostgresConfig()
	v.SetDefault("database.url", "")
	v.SetDefault("database.deductions_table", db.DeductionsTable)
	v.SetDefault("database.transactions_table", db.TransactionsTable)
	v.SetDefault("database.max_conns", db.MaxConns)
	v.SetDefault("database.connect_timeout", db.ConnectTimeout)

	server := api.DefaultServerConfig()
	v.SetDefault("server.port", server.Port)
	v.SetDefault("server.read_timeout", server.ReadTimeout)
	v.SetDefault("server.write_timeout", server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", server.MaxBodyBytes)

	log := logger.DefaultConfig()
	v.SetDefault("log.level", string(log.Level))
	v.SetDefault("log.format", string(log.Format))
	v.SetDefault("log.output", string(log.Output))
	v.SetDefault("log.file", "")

	report := reporter.DefaultReportConfig()
	v.SetDefault("report.include_breakdown", report.IncludeBreakdown)
	v.SetDefault("report.include_candidates", report.IncludeCandidates)
	v.SetDefault("report.sort_by_confidence", report.SortByConfidence)
	v.SetDefault("report.max_items", report.MaxItems)
}

// NewViper returns a viper instance with defaults and MATCHER_* environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a config file into v
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config_file", path, err).
			WithSuggestion("Check that the file exists and is valid YAML, JSON or TOML")
	}
	return nil
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration. Threshold problems are reported as
// invariant violations, everything else as invalid configuration.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvariantViolation, "thresholds", c.Thresholds.String(), err).
			WithSuggestion("Thresholds must be within 0-100 with auto_approve >= require_review >= reject")
	}
	if err := c.ServiceConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", nil, err)
	}
	if err := c.ServerConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server", nil, err)
	}
	if err := c.LoggerConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	if c.Report.MaxItems < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.max_items", c.Report.MaxItems,
			fmt.Errorf("max items cannot be negative"))
	}
	return nil
}

// ApplyThresholds overlays a partial threshold change and revalidates the result
func (c *Config) ApplyThresholds(update models.ThresholdUpdate) error {
	next := c.Thresholds.Apply(update)
	if err := next.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvariantViolation, "thresholds", next.String(), err).
			WithSuggestion("Check --auto-approve, --require-review and --reject")
	}
	c.Thresholds = next
	return nil
}

// ServiceConfig builds the matching service configuration
func (c *Config) ServiceConfig() *reconciler.Config {
	config := reconciler.DefaultConfig()
	config.Thresholds = c.Thresholds
	config.MaxConcurrency = c.Matching.MaxConcurrency
	config.ProgressReporting = c.Matching.Progress
	config.Matching.CandidateConcurrency = c.Matching.CandidateConcurrency
	config.Matching.ParallelThreshold = c.Matching.ParallelThreshold
	config.Preprocessing.RemoveDuplicates = c.Matching.RemoveDuplicateCandidates
	return config
}

// PostgresConfig builds the Postgres source configuration
func (c *Config) PostgresConfig() *store.PostgresConfig {
	return &store.PostgresConfig{
		URL:               c.Database.URL,
		DeductionsTable:   c.Database.DeductionsTable,
		TransactionsTable: c.Database.TransactionsTable,
		MaxConns:          c.Database.MaxConns,
		ConnectTimeout:    c.Database.ConnectTimeout,
	}
}

// ServerConfig builds the HTTP server configuration
func (c *Config) ServerConfig() *api.ServerConfig {
	return &api.ServerConfig{
		Port:            c.Server.Port,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		MaxBodyBytes:    c.Server.MaxBodyBytes,
	}
}

// LoggerConfig builds the logger configuration
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.Level(strings.ToLower(c.Log.Level)),
		Format: logger.Format(strings.ToLower(c.Log.Format)),
		Output: logger.Output(strings.ToLower(c.Log.Output)),
		File:   c.Log.File,
	}
}

// ReportConfig builds a report configuration for the given output format
func (c *Config) ReportConfig(format string) (*reporter.ReportConfig, error) {
	f, err := reporter.ParseFormat(format)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "format", format, err)
	}

	config := reporter.DefaultReportConfig()
	config.Format = f
	config.IncludeBreakdown = c.Report.IncludeBreakdown
	config.IncludeCandidates = c.Report.IncludeCandidates
	config.SortByConfidence = c.Report.SortByConfidence
	config.MaxItems = c.Report.MaxItems
	return config, nil
}
