// Package reporter renders duplicate scan results for people and programs.
//
// Supported output formats:
//   - Console: Human-readable summary for terminal display
//   - JSON: Structured data format for programmatic consumption
//   - CSV: Comma-separated group listing for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(nil)
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang-dedup-service/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeGroupMembers  bool `json:"include_group_members"`
	IncludeMergeOutcomes bool `json:"include_merge_outcomes"`
	IncludeStats         bool `json:"include_stats"`

	// Console formatting options
	MaxGroupsShown int `json:"max_groups_shown"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// Ordering options
	SortByAmount bool `json:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeGroupMembers:  true,
		IncludeMergeOutcomes: true,
		IncludeStats:         true,
		MaxGroupsShown:       20,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
		SortByAmount:         false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxGroupsShown < 0 {
		return fmt.Errorf("max groups shown cannot be negative, got %d", c.MaxGroupsShown)
	}

	return nil
}

// ReportGenerator renders duplicate scan results in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport renders a scan result and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *models.DetectionResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("detection result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *models.DetectionResult, writer io.Writer) error {
	fmt.Fprintf(writer, "DUPLICATE SCAN REPORT\n")
	fmt.Fprintf(writer, "Scan ID:  %s\n", result.ScanID)
	fmt.Fprintf(writer, "User:     %s\n", result.UserID)
	fmt.Fprintf(writer, "Window:   %s to %s\n",
		result.WindowStart.Format("2006-01-02"), result.WindowEnd.Format("2006-01-02"))
	fmt.Fprintf(writer, "Started:  %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration: %v\n\n", result.Duration)

	if rg.config.IncludeStats && result.Stats != nil {
		fmt.Fprintf(writer, "=== SUMMARY ===\n")
		rg.printSummary(result.Stats, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(result.Groups) > 0 {
		fmt.Fprintf(writer, "=== DUPLICATE GROUPS ===\n")
		rg.printGroups(result.Groups, writer)
		fmt.Fprintf(writer, "\n")
	} else {
		fmt.Fprintf(writer, "No duplicate groups found.\n\n")
	}

	if rg.config.IncludeMergeOutcomes && len(result.MergeOutcomes) > 0 {
		fmt.Fprintf(writer, "=== MERGE OUTCOMES ===\n")
		rg.printMergeOutcomes(result.MergeOutcomes, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(writer, "=== ERRORS ===\n")
		for _, msg := range result.Errors {
			fmt.Fprintf(writer, "  - %s\n", msg)
		}
	}

	return nil
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *models.DetectionResult, writer io.Writer) error {
	filteredResult := rg.filterResultForOutput(result)

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(filteredResult)
}

// generateCSVReport generates a CSV report with one row per group member
func (rg *ReportGenerator) generateCSVReport(result *models.DetectionResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Group_ID",
			"Confidence",
			"Review_Status",
			"Transaction_ID",
			"Role",
			"Date",
			"Amount",
			"Vendor",
			"Description",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, group := range rg.orderedGroups(result.Groups) {
		for _, tx := range group.Transactions {
			role := "duplicate"
			if tx.ID == group.PrimaryID {
				role = "primary"
			}

			record := []string{
				group.GroupID,
				fmt.Sprintf("%.2f", group.Confidence),
				string(group.ReviewStatus),
				tx.ID,
				role,
				tx.Date.Format("2006-01-02"),
				tx.Amount.StringFixed(2),
				tx.Vendor,
				tx.Description,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write group member record: %w", err)
			}
		}
	}

	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(stats *models.DetectionStats, writer io.Writer) {
	fmt.Fprintf(writer, "Transactions Scanned: %d\n", stats.TotalTransactions)
	fmt.Fprintf(writer, "Candidate Pairs:      %d\n", stats.CandidatePairs)
	fmt.Fprintf(writer, "Matches Found:        %d\n", stats.MatchesFound)
	fmt.Fprintf(writer, "Duplicate Groups:     %d\n", stats.GroupsFound)
	fmt.Fprintf(writer, "Auto-Merged Groups:   %d\n", stats.AutoMergedGroups)
	fmt.Fprintf(writer, "Pending Review:       %d\n", stats.PendingGroups)
	if stats.MergeFailures > 0 {
		fmt.Fprintf(writer, "Merge Failures:       %d\n", stats.MergeFailures)
	}
	fmt.Fprintf(writer, "Amount Affected:      %s\n", stats.TotalAmountAffected.StringFixed(2))

	if len(stats.ByMatchType) > 0 {
		fmt.Fprintf(writer, "\nBy Match Type:\n")
		for _, matchType := range sortedKeys(stats.ByMatchType) {
			fmt.Fprintf(writer, "  %-14s %d\n", matchType+":", stats.ByMatchType[matchType])
		}
	}

	if len(stats.ByConfidenceBucket) > 0 {
		fmt.Fprintf(writer, "\nBy Confidence:\n")
		for _, bucket := range sortedKeys(stats.ByConfidenceBucket) {
			fmt.Fprintf(writer, "  %-14s %d\n", bucket+":", stats.ByConfidenceBucket[bucket])
		}
	}
}

func (rg *ReportGenerator) printGroups(groups []*models.DuplicateGroup, writer io.Writer) {
	ordered := rg.orderedGroups(groups)
	fmt.Fprintf(writer, "Total Groups: %d\n\n", len(ordered))

	for i, group := range ordered {
		if rg.config.MaxGroupsShown > 0 && i >= rg.config.MaxGroupsShown {
			fmt.Fprintf(writer, "... and %d more groups\n", len(ordered)-rg.config.MaxGroupsShown)
			break
		}

		fmt.Fprintf(writer, "%d. %s  confidence=%.2f  status=%s  members=%d  total=%s\n",
			i+1,
			group.GroupID,
			group.Confidence,
			group.ReviewStatus,
			group.DuplicateCount,
			group.TotalAmount.StringFixed(2))

		if rg.config.IncludeGroupMembers {
			for _, tx := range group.Transactions {
				marker := " "
				if tx.ID == group.PrimaryID {
					marker = "*"
				}
				fmt.Fprintf(writer, "   %s %s  %s  %s  %s\n",
					marker,
					tx.ID,
					tx.Date.Format("2006-01-02"),
					tx.Amount.StringFixed(2),
					firstNonEmpty(tx.Vendor, tx.Description))
			}
		}
	}
}

func (rg *ReportGenerator) printMergeOutcomes(outcomes []*models.MergeOutcome, writer io.Writer) {
	for _, outcome := range outcomes {
		status := "merged"
		if !outcome.Succeeded() {
			status = "failed"
		}

		fmt.Fprintf(writer, "  %s: %s (kept %s, deleted %d",
			outcome.GroupID, status, outcome.PrimaryID, len(outcome.DeletedIDs))
		if len(outcome.FailedIDs) > 0 {
			fmt.Fprintf(writer, ", failed %s", strings.Join(outcome.FailedIDs, ", "))
		}
		fmt.Fprintf(writer, ")\n")

		if outcome.Error != "" {
			fmt.Fprintf(writer, "    error: %s\n", outcome.Error)
		}
	}
}

// orderedGroups returns a copy of groups in the configured display order.
func (rg *ReportGenerator) orderedGroups(groups []*models.DuplicateGroup) []*models.DuplicateGroup {
	ordered := append([]*models.DuplicateGroup(nil), groups...)
	if rg.config.SortByAmount {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].TotalAmount.Abs().GreaterThan(ordered[j].TotalAmount.Abs())
		})
	}
	return ordered
}

func (rg *ReportGenerator) filterResultForOutput(result *models.DetectionResult) map[string]interface{} {
	output := map[string]interface{}{
		"scan_id":        result.ScanID,
		"user_id":        result.UserID,
		"window_start":   result.WindowStart.Format("2006-01-02"),
		"window_end":     result.WindowEnd.Format("2006-01-02"),
		"min_confidence": result.MinConfidence,
		"groups":         rg.orderedGroups(result.Groups),
		"started_at":     result.StartedAt,
		"completed_at":   result.CompletedAt,
	}

	if rg.config.IncludeMergeOutcomes && result.MergeOutcomes != nil {
		output["merge_outcomes"] = result.MergeOutcomes
	}

	if rg.config.IncludeStats && result.Stats != nil {
		output["stats"] = result.Stats
	}

	if len(result.Errors) > 0 {
		output["errors"] = result.Errors
	}

	return output
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
