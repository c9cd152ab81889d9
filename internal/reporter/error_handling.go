package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with input checks and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders a *models.BatchResult or *models.ReviewQueue.
// A failing JSON or CSV rendering falls back to console output, and a failing
// file write falls back to a backup file next to the original.
func (srg *SafeReportGenerator) GenerateReportSafely(result interface{}, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	render, err := srg.renderer(result)
	if err != nil {
		srg.logger.WithError(err).Error("Invalid result type for report generation")
		return err
	}

	if err := srg.generateWithFallback(render, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.Debug("Report generation completed")
	return nil
}

type renderFunc func(rg *ReportGenerator, w io.Writer) error

func (srg *SafeReportGenerator) renderer(result interface{}) (renderFunc, error) {
	switch r := result.(type) {
	case *models.BatchResult:
		if r == nil {
			break
		}
		return func(rg *ReportGenerator, w io.Writer) error { return rg.GenerateBatchReport(r, w) }, nil
	case *models.ReviewQueue:
		if r == nil {
			break
		}
		return func(rg *ReportGenerator, w io.Writer) error { return rg.GenerateQueueReport(r, w) }, nil
	default:
		return nil, errors.ValidationError(
			errors.CodeInvalidData,
			"result_type",
			fmt.Sprintf("%T", result),
			nil,
		).WithSuggestion("Provide a BatchResult or ReviewQueue")
	}

	return nil, errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
		WithSuggestion("Provide a non-nil result")
}

func (srg *SafeReportGenerator) validateInputs(result interface{}, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("Provide a valid match result")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("Provide a valid output writer")
	}

	return nil
}

func (srg *SafeReportGenerator) generateWithFallback(render renderFunc, writer io.Writer) error {
	err := render(srg.ReportGenerator, writer)
	if err == nil {
		return nil
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if srg.shouldAttemptOutputFallback(err, writer) {
		return srg.generateWithOutputFallback(render, writer, err)
	}

	if srg.config.Format != FormatConsole {
		return srg.generateWithFormatFallback(render, writer, err)
	}

	return srg.wrapGenerationError(err)
}

func (srg *SafeReportGenerator) generateWithFormatFallback(render renderFunc, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := render(fallbackGenerator, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	return nil
}

func (srg *SafeReportGenerator) shouldAttemptOutputFallback(err error, writer io.Writer) bool {
	if file, ok := writer.(*os.File); ok && file.Name() != "" && file != os.Stdout && file != os.Stderr {
		return isFileError(err)
	}
	return false
}

func (srg *SafeReportGenerator) generateWithOutputFallback(render renderFunc, writer io.Writer, originalErr error) error {
	file := writer.(*os.File)
	originalPath := file.Name()
	backupPath := generateBackupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}
	defer backupFile.Close()

	if err := render(srg.ReportGenerator, backupFile); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", originalPath, backupPath)
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if engineErr, ok := errors.AsEngineError(err); ok {
		return engineErr
	}

	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

// WriteReportFile renders result into path, creating or truncating it
func (srg *SafeReportGenerator) WriteReportFile(result interface{}, path string) error {
	file, err := os.Create(path)
	if err != nil {
		if os.IsPermission(err) {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}

	if err := srg.GenerateReportSafely(result, file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func isFileError(err error) bool {
	if err == nil {
		return false
	}
	if os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
