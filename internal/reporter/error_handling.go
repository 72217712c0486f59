package reporter

import (
	"fmt"
	"io"
	"os"

	"golang-dedup-service/internal/models"
	"golang-dedup-service/pkg/errors"
	"golang-dedup-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and a console
// fallback when a structured format fails mid-write.
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

// GenerateReportSafely renders a scan result with validation, logging, and a
// console fallback for failed structured formats.
func (srg *SafeReportGenerator) GenerateReportSafely(result *models.DetectionResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Info("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.generateWithFallback(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.Info("Report generation completed successfully")
	return nil
}

func (srg *SafeReportGenerator) validateInputs(result *models.DetectionResult, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("Provide a valid scan result")
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

// generateWithFallback tries the configured format first and falls back to a
// console rendering when a structured format fails.
func (srg *SafeReportGenerator) generateWithFallback(result *models.DetectionResult, writer io.Writer) error {
	err := srg.GenerateReport(result, writer)
	if err == nil {
		return nil
	}

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting console fallback")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	fallbackGenerator, fallbackErr := NewReportGenerator(&fallbackConfig)
	if fallbackErr != nil {
		return srg.wrapGenerationError(err)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", err)

	if fallbackErr := fallbackGenerator.GenerateReport(result, writer); fallbackErr != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, fallbackErr),
		)
	}

	srg.logger.Info("Report generated successfully using console fallback")
	return nil
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if dedupErr, ok := errors.AsDedupError(err); ok {
		return dedupErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
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
