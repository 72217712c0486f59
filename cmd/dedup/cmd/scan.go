package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-dedup-service/cmd/dedup/config"
	"golang-dedup-service/internal/reporter"
	"golang-dedup-service/internal/scanner"
	"golang-dedup-service/internal/storage"
)

// Flags for the scan command
var (
	scanDBPath          string
	scanUserID          string
	scanProfile         string
	scanWindowDays      int
	scanRangeDays       int
	scanMinConfidence   float64
	scanAutoMerge       bool
	scanIncludeReviewed bool
	scanOutputFormat    string
	scanOutputFile      string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a user's transactions for duplicates",
	Long: `Scan fetches a user's recent transactions, scores date-windowed
candidate pairs on amount, date, vendor, and description similarity, and
clusters the matches into duplicate groups.

By default the scan is advisory: groups are reported but nothing is merged.
With --auto-merge, groups at or above the auto-merge threshold are resolved
by deleting the superseded transactions.

Examples:
  # Advisory scan with console output
  dedup scan --db transactions.db --user alice

  # Wider window, lower confidence floor
  dedup scan --db transactions.db --user alice --profile relaxed

  # Resolve high-confidence groups and emit JSON
  dedup scan --db transactions.db --user alice --auto-merge \
    --output-format json --output-file scan.json`,

	PreRunE: validateScanFlags,
	RunE:    runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	// Required flags
	scanCmd.Flags().StringVar(&scanDBPath, "db", "", "path to the transaction database (required)")
	scanCmd.Flags().StringVarP(&scanUserID, "user", "u", "", "user whose transactions to scan (required)")

	// Detection configuration flags
	scanCmd.Flags().StringVar(&scanProfile, "profile", "default", "detection profile: default, strict, relaxed")
	scanCmd.Flags().IntVarP(&scanWindowDays, "window-days", "w", 0, "candidate pairing window in days (0 = profile default)")
	scanCmd.Flags().IntVarP(&scanRangeDays, "range-days", "r", 0, "how far back to scan in days (0 = profile default)")
	scanCmd.Flags().Float64VarP(&scanMinConfidence, "min-confidence", "m", 0, "minimum confidence to report (0 = profile default)")
	scanCmd.Flags().BoolVar(&scanIncludeReviewed, "include-reviewed", false, "include previously reviewed transactions")

	// Resolution flags
	scanCmd.Flags().BoolVar(&scanAutoMerge, "auto-merge", false, "merge groups at or above the auto-merge threshold")

	// Output flags
	scanCmd.Flags().StringVarP(&scanOutputFormat, "output-format", "f", "console", "output format: console, json, csv")
	scanCmd.Flags().StringVarP(&scanOutputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Mark required flags
	scanCmd.MarkFlagRequired("db")
	scanCmd.MarkFlagRequired("user")

	// Bind flags to viper
	viper.BindPFlag("scan.db", scanCmd.Flags().Lookup("db"))
	viper.BindPFlag("scan.user", scanCmd.Flags().Lookup("user"))
	viper.BindPFlag("scan.profile", scanCmd.Flags().Lookup("profile"))
	viper.BindPFlag("scan.window-days", scanCmd.Flags().Lookup("window-days"))
	viper.BindPFlag("scan.range-days", scanCmd.Flags().Lookup("range-days"))
	viper.BindPFlag("scan.min-confidence", scanCmd.Flags().Lookup("min-confidence"))
	viper.BindPFlag("scan.include-reviewed", scanCmd.Flags().Lookup("include-reviewed"))
	viper.BindPFlag("scan.auto-merge", scanCmd.Flags().Lookup("auto-merge"))
	viper.BindPFlag("scan.output-format", scanCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("scan.output-file", scanCmd.Flags().Lookup("output-file"))
}

func validateScanFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	scanDBPath = viper.GetString("scan.db")
	scanUserID = viper.GetString("scan.user")
	scanProfile = viper.GetString("scan.profile")
	scanWindowDays = viper.GetInt("scan.window-days")
	scanRangeDays = viper.GetInt("scan.range-days")
	scanMinConfidence = viper.GetFloat64("scan.min-confidence")
	scanIncludeReviewed = viper.GetBool("scan.include-reviewed")
	scanAutoMerge = viper.GetBool("scan.auto-merge")
	scanOutputFormat = viper.GetString("scan.output-format")
	scanOutputFile = viper.GetString("scan.output-file")

	if scanDBPath == "" {
		return fmt.Errorf("db is required")
	}
	if scanUserID == "" {
		return fmt.Errorf("user is required")
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[scanOutputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", scanOutputFormat)
	}

	if scanWindowDays < 0 {
		return fmt.Errorf("window days cannot be negative")
	}
	if scanRangeDays < 0 {
		return fmt.Errorf("range days cannot be negative")
	}
	if scanMinConfidence < 0 || scanMinConfidence > 1 {
		return fmt.Errorf("min confidence must be between 0.0 and 1.0")
	}

	if scanOutputFile != "" {
		dir := filepath.Dir(scanOutputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	errorHandler := NewCLIErrorHandler()

	detectorConfig, err := config.CreateDetectorConfig(
		scanProfile, scanWindowDays, scanRangeDays, scanMinConfidence, scanIncludeReviewed)
	if err != nil {
		return err
	}

	store, err := storage.Open(scanDBPath, nil)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}
	defer store.Close()

	service, err := scanner.NewDetectionService(store, store, detectorConfig, nil)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Scanning %s for duplicates (profile=%s, auto-merge=%v)...\n",
			scanUserID, scanProfile, scanAutoMerge)
	}

	result, err := service.Scan(ctx, &scanner.ScanRequest{
		UserID:          scanUserID,
		DateRangeDays:   scanRangeDays,
		MinConfidence:   scanMinConfidence,
		IncludeReviewed: scanIncludeReviewed,
		AutoMerge:       scanAutoMerge,
	})
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	reportConfig, err := config.CreateReportConfig(scanOutputFormat)
	if err != nil {
		return err
	}

	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	output := os.Stdout
	if scanOutputFile != "" {
		output, err = os.Create(scanOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := reportGenerator.GenerateReport(result, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nScan completed in %v.\n", result.Duration)
		fmt.Fprintf(os.Stderr, "Scanned %d transactions, found %d duplicate groups (%d auto-merged, %d pending).\n",
			result.Stats.TotalTransactions, result.Stats.GroupsFound,
			result.Stats.AutoMergedGroups, result.Stats.PendingGroups)
		if len(result.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "Encountered %d merge errors; see the report for details.\n", len(result.Errors))
		}
	}

	return nil
}
