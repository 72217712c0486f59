// Package parsers reads transaction history exports (CSV) into the domain
// model, tolerating the column-name and format drift found in real bank and
// budgeting-app exports.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	dedupErrors "golang-dedup-service/pkg/errors"
	"golang-dedup-service/pkg/logger"
)

// ParseConfig holds low-level CSV reading options. ColumnAliases maps
// lowercased header variants onto canonical column names, so one config can
// absorb the naming drift across export sources.
type ParseConfig struct {
	HasHeader     bool              `json:"has_header"`
	Delimiter     rune              `json:"delimiter"`
	SkipEmptyRows bool              `json:"skip_empty_rows"`
	ColumnAliases map[string]string `json:"column_aliases,omitempty"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:     true,
		Delimiter:     ',',
		SkipEmptyRows: true,
	}
}

// baseParser provides the CSV plumbing shared by importers.
type baseParser struct {
	config *ParseConfig
	logger logger.Logger
}

func newBaseParser(config *ParseConfig) *baseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &baseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("parser"),
	}
}

// parseContext holds state during one file's parse.
type parseContext struct {
	File       string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

func newParseContext(ctx context.Context, file string) *parseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &parseContext{
		File:      file,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

func (pc *parseContext) isCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// columnIndex returns the index of a column by name, case-insensitive, or -1.
func (pc *parseContext) columnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	lowerName := strings.ToLower(name)
	for header, index := range pc.HeaderMap {
		if strings.ToLower(header) == lowerName {
			return index
		}
	}

	return -1
}

// openFile opens a CSV file and returns a configured reader.
func (bp *baseParser) openFile(filePath string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, nil, dedupErrors.FileError(dedupErrors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, dedupErrors.FileError(dedupErrors.CodeFilePermission, filePath, err)
		}
		return nil, nil, dedupErrors.FileError(dedupErrors.CodeFileCorrupted, filePath, err)
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

// readHeaders reads the header row and verifies the required columns exist.
func (bp *baseParser) readHeaders(reader *csv.Reader, parseCtx *parseContext, requiredHeaders []string) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = append([]string(nil), requiredHeaders...)
		bp.buildHeaderMap(parseCtx)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return dedupErrors.ValidationError(dedupErrors.CodeMissingField, "file_content", "empty", nil).
				WithSuggestion("Ensure the file contains header and data rows")
		}
		return dedupErrors.ParseError(dedupErrors.CodeInvalidFormat, parseCtx.File, 1, "headers", "", err)
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	for i, header := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(header)
	}
	bp.buildHeaderMap(parseCtx)

	for _, header := range requiredHeaders {
		if parseCtx.columnIndex(header) == -1 {
			// Known headers include alias-resolved canonical names, so a
			// column satisfied through an alias is not reported missing.
			known := make([]string, 0, len(parseCtx.HeaderMap))
			for name := range parseCtx.HeaderMap {
				known = append(known, name)
			}
			return dedupErrors.MissingColumnError(parseCtx.File, requiredHeaders, known)
		}
	}

	return nil
}

func (bp *baseParser) buildHeaderMap(parseCtx *parseContext) {
	parseCtx.HeaderMap = make(map[string]int)
	for i, header := range parseCtx.Headers {
		parseCtx.HeaderMap[header] = i

		// Aliased headers register under their canonical name too; a real
		// column with that name wins over an alias.
		if canonical, ok := bp.config.ColumnAliases[strings.ToLower(header)]; ok {
			if _, taken := parseCtx.HeaderMap[canonical]; !taken {
				parseCtx.HeaderMap[canonical] = i
			}
		}
	}
}

// readRecord reads the next non-empty record.
func (bp *baseParser) readRecord(reader *csv.Reader, parseCtx *parseContext) ([]string, error) {
	for {
		if parseCtx.isCancelled() {
			return nil, parseCtx.ctx.Err()
		}

		record, err := reader.Read()
		if err != nil {
			return nil, err
		}

		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// fieldValue retrieves a field by column name; missing optional columns
// return the empty string.
func (bp *baseParser) fieldValue(record []string, parseCtx *parseContext, name string) string {
	index := parseCtx.columnIndex(name)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// maxRowErrors caps how many row errors an import collects before giving up
// on the file as a whole.
const maxRowErrors = 100

// ParseStats holds statistics about an import. Row errors are collected as
// enhanced parse errors so callers can render file/line/column detail.
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	collector     *dedupErrors.ParseErrorCollector
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		collector: dedupErrors.NewParseErrorCollector(maxRowErrors, true),
	}
}

// AddError records a row error and reports whether the import should keep
// going. It returns false once the error cap is reached.
func (ps *ParseStats) AddError(err *dedupErrors.EnhancedParseError) bool {
	return ps.collector.Add(err)
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.collector.HasErrors()
}

// ErrorCount returns the number of collected row errors.
func (ps *ParseStats) ErrorCount() int {
	return len(ps.collector.GetErrors())
}

// Errors returns the collected row errors.
func (ps *ParseStats) Errors() []*dedupErrors.EnhancedParseError {
	return ps.collector.GetErrors()
}

// ErrorSummary aggregates the collected errors by category and code.
func (ps *ParseStats) ErrorSummary() *dedupErrors.ErrorSummary {
	return ps.collector.GetSummary()
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount())
}
