package config

import (
	"fmt"

	"golang-dedup-service/internal/detector"
	"golang-dedup-service/internal/parsers"
	"golang-dedup-service/internal/reporter"
	"golang-dedup-service/pkg/logger"
)

// CreateImporterConfig creates a transaction importer configuration with
// aliases for the column names commonly seen in exported transaction data.
func CreateImporterConfig() *parsers.ImporterConfig {
	config := parsers.DefaultImporterConfig()
	config.ColumnAliases = map[string]string{
		// Common aliases for transaction columns
		"transaction_id": "id",
		"txn_id":         "id",
		"trx_id":         "id",
		"posting_date":   "date",
		"posted_date":    "date",
		"transaction_date": "date",
		"amt":            "amount",
		"total":          "amount",
		"value":          "amount",
		"memo":           "description",
		"details":        "description",
		"narrative":      "description",
		"merchant":       "vendor",
		"payee":          "vendor",
		"counterparty":   "vendor",
	}
	return config
}

// CreateDetectorConfig creates a detection configuration from a named profile
// with CLI overrides applied. Zero-valued overrides leave the profile value
// in place.
func CreateDetectorConfig(profile string, windowDays, rangeDays int, minConfidence float64, includeReviewed bool) (*detector.Config, error) {
	var config *detector.Config
	switch profile {
	case "", "default":
		config = detector.DefaultConfig()
	case "strict":
		config = detector.StrictConfig()
	case "relaxed":
		config = detector.RelaxedConfig()
	default:
		return nil, fmt.Errorf("unknown detection profile: %s (valid: default, strict, relaxed)", profile)
	}

	if windowDays > 0 {
		config.DateWindowDays = windowDays
	}
	if rangeDays > 0 {
		config.DateRangeDays = rangeDays
	}
	if minConfidence > 0 {
		config.MinConfidence = minConfidence
	}
	config.IncludeReviewed = includeReviewed

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}

	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		return nil, fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)
	}

	return config, nil
}

// CreateLoggerConfig creates a logger configuration for CLI usage. Verbose
// runs log debug detail to stderr so reports on stdout stay clean.
func CreateLoggerConfig(verbose bool) *logger.Config {
	config := logger.DefaultConfig()
	config.Output = logger.StderrOutput
	if verbose {
		config.Level = logger.DebugLevel
	} else {
		config.Level = logger.WarnLevel
	}
	return config
}
