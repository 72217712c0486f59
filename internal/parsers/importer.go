package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang-dedup-service/internal/models"
	dedupErrors "golang-dedup-service/pkg/errors"
	"golang-dedup-service/pkg/logger"
)

// ImporterConfig maps a CSV export's columns onto the transaction model.
// ColumnAliases maps header variants (lowercased) onto the standard column
// names for exports that label columns differently, e.g. "txn_id" -> "id".
type ImporterConfig struct {
	IDColumn          string            `json:"id_column"`
	DateColumn        string            `json:"date_column"`
	AmountColumn      string            `json:"amount_column"`
	DescriptionColumn string            `json:"description_column"`
	VendorColumn      string            `json:"vendor_column"`
	CategoryColumn    string            `json:"category_column"`
	HasHeader         bool              `json:"has_header"`
	Delimiter         rune              `json:"delimiter"`
	ColumnAliases     map[string]string `json:"column_aliases,omitempty"`
}

// DefaultImporterConfig returns a configuration matching the common export
// layout.
func DefaultImporterConfig() *ImporterConfig {
	return &ImporterConfig{
		IDColumn:          "id",
		DateColumn:        "date",
		AmountColumn:      "amount",
		DescriptionColumn: "description",
		VendorColumn:      "vendor",
		CategoryColumn:    "category",
		HasHeader:         true,
		Delimiter:         ',',
	}
}

// Validate checks if the importer configuration is valid.
func (c *ImporterConfig) Validate() error {
	if strings.TrimSpace(c.IDColumn) == "" {
		return fmt.Errorf("id column cannot be empty")
	}
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	if strings.TrimSpace(c.DescriptionColumn) == "" {
		return fmt.Errorf("description column cannot be empty")
	}
	return nil
}

// GetColumnName returns the configured column name for a standard field.
func (c *ImporterConfig) GetColumnName(standardName string) string {
	switch standardName {
	case "id":
		return c.IDColumn
	case "date":
		return c.DateColumn
	case "amount":
		return c.AmountColumn
	case "description":
		return c.DescriptionColumn
	case "vendor":
		return c.VendorColumn
	case "category":
		return c.CategoryColumn
	default:
		return standardName
	}
}

// TransactionImporter parses transaction CSV exports.
type TransactionImporter struct {
	*baseParser
	config *ImporterConfig
	logger logger.Logger
}

// NewTransactionImporter creates a TransactionImporter with the given
// configuration. A nil config falls back to defaults.
func NewTransactionImporter(config *ImporterConfig) (*TransactionImporter, error) {
	if config == nil {
		config = DefaultImporterConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, dedupErrors.ConfigurationError(dedupErrors.CodeInvalidConfig,
			"importer_config", config, err)
	}

	aliases := make(map[string]string, len(config.ColumnAliases))
	for variant, canonical := range config.ColumnAliases {
		aliases[strings.ToLower(variant)] = canonical
	}

	parseConfig := &ParseConfig{
		HasHeader:     config.HasHeader,
		Delimiter:     config.Delimiter,
		SkipEmptyRows: true,
		ColumnAliases: aliases,
	}

	return &TransactionImporter{
		baseParser: newBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("importer"),
	}, nil
}

// ImportFile parses a CSV file of transactions for one user. Rows that fail
// to parse are recorded in the stats and skipped; only file-level problems
// (missing file, missing required columns) return an error.
func (ti *TransactionImporter) ImportFile(ctx context.Context, filePath, userID string) ([]*models.Transaction, *ParseStats, error) {
	ti.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"user_id":   userID,
	}).Info("Starting transaction import")

	file, reader, err := ti.openFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := newParseContext(ctx, filePath)
	stats := NewParseStats()

	required := []string{
		ti.config.GetColumnName("id"),
		ti.config.GetColumnName("date"),
		ti.config.GetColumnName("amount"),
		ti.config.GetColumnName("description"),
	}
	if err := ti.readHeaders(reader, parseCtx, required); err != nil {
		return nil, stats, err
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "import_transactions",
		Logger:    ti.logger,
	})

	var transactions []*models.Transaction
	for {
		record, err := ti.readRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if parseCtx.isCancelled() {
				tracker.CompleteWithError(err)
				return transactions, stats, dedupErrors.Wrap(err, dedupErrors.CategoryParse,
					dedupErrors.CodeInvalidFormat, "import cancelled")
			}

			rowErr := dedupErrors.NewEnhancedParseError(dedupErrors.CodeInvalidFormat,
				&dedupErrors.ParseContext{File: parseCtx.File, Line: parseCtx.LineNumber},
				"failed to read record", err).
				WithSuggestion("Check the delimiter and quoting of this row")
			if !stats.AddError(rowErr) {
				tracker.CompleteWithError(rowErr)
				return transactions, stats, ti.tooManyErrors(stats)
			}
			continue
		}

		stats.RecordsParsed++

		transaction, parseErr := ti.parseRecord(record, parseCtx, userID)
		if parseErr != nil {
			if !stats.AddError(parseErr) {
				tracker.CompleteWithError(parseErr)
				return transactions, stats, ti.tooManyErrors(stats)
			}
			continue
		}

		transactions = append(transactions, transaction)
		stats.RecordsValid++
		tracker.Increment()
	}

	stats.TotalLines = parseCtx.LineNumber
	tracker.Complete()

	ti.logger.WithFields(logger.Fields{
		"file_path":     filePath,
		"records_valid": stats.RecordsValid,
		"error_count":   stats.ErrorCount(),
	}).Info("Transaction import completed")

	return transactions, stats, nil
}

func (ti *TransactionImporter) tooManyErrors(stats *ParseStats) error {
	return dedupErrors.New(dedupErrors.CategoryParse, dedupErrors.CodeInvalidData,
		fmt.Sprintf("import aborted after %d row errors", stats.ErrorCount())).
		WithSuggestion("Check the file format and column configuration; the file may not be a transaction export")
}

// parseRecord converts one CSV record into a Transaction.
func (ti *TransactionImporter) parseRecord(record []string, parseCtx *parseContext, userID string) (*models.Transaction, *dedupErrors.EnhancedParseError) {
	id := ti.fieldValue(record, parseCtx, ti.config.GetColumnName("id"))
	if id == "" {
		return nil, dedupErrors.EmptyValueError(parseCtx.File, parseCtx.LineNumber,
			ti.config.GetColumnName("id"))
	}

	dateStr := ti.fieldValue(record, parseCtx, ti.config.GetColumnName("date"))
	date, err := models.ParseDateWithFormats(dateStr)
	if err != nil {
		return nil, dedupErrors.InvalidDateError(parseCtx.File, parseCtx.LineNumber,
			ti.config.GetColumnName("date"), dateStr)
	}

	amountStr := ti.fieldValue(record, parseCtx, ti.config.GetColumnName("amount"))
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, dedupErrors.InvalidAmountError(parseCtx.File, parseCtx.LineNumber,
			ti.config.GetColumnName("amount"), amountStr)
	}

	transaction := &models.Transaction{
		ID:          id,
		UserID:      userID,
		Date:        date,
		Amount:      amount,
		Description: ti.fieldValue(record, parseCtx, ti.config.GetColumnName("description")),
		Vendor:      ti.fieldValue(record, parseCtx, ti.config.GetColumnName("vendor")),
		Category:    ti.fieldValue(record, parseCtx, ti.config.GetColumnName("category")),
	}

	if err := transaction.Validate(); err != nil {
		return nil, dedupErrors.NewEnhancedParseError(dedupErrors.CodeInvalidData,
			&dedupErrors.ParseContext{
				File:  parseCtx.File,
				Line:  parseCtx.LineNumber,
				Value: id,
			}, "transaction failed validation", err)
	}

	return transaction, nil
}
