package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-dedup-service/cmd/dedup/config"
	"golang-dedup-service/internal/parsers"
	"golang-dedup-service/internal/storage"
	dedupErrors "golang-dedup-service/pkg/errors"
)

// Flags for the import command
var (
	importDBPath string
	importUserID string
	importFile   string
	importStrict bool
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a transaction CSV export into the database",
	Long: `Import parses a CSV export of transactions and stores them for later
duplicate scans. Rows that fail to parse are reported and skipped; with
--strict any bad row fails the import instead.

Common column-name variants (txn_id, posting_date, memo, merchant, ...) are
recognized automatically.

Examples:
  dedup import --db transactions.db --user alice --file export.csv
  dedup import --db transactions.db --user alice --file export.csv --strict`,

	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importDBPath, "db", "", "path to the transaction database (required)")
	importCmd.Flags().StringVarP(&importUserID, "user", "u", "", "user the transactions belong to (required)")
	importCmd.Flags().StringVarP(&importFile, "file", "i", "", "path to the CSV export (required)")
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "fail the import if any row cannot be parsed")

	importCmd.MarkFlagRequired("db")
	importCmd.MarkFlagRequired("user")
	importCmd.MarkFlagRequired("file")

	viper.BindPFlag("import.db", importCmd.Flags().Lookup("db"))
	viper.BindPFlag("import.user", importCmd.Flags().Lookup("user"))
	viper.BindPFlag("import.file", importCmd.Flags().Lookup("file"))
	viper.BindPFlag("import.strict", importCmd.Flags().Lookup("strict"))
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	importDBPath = viper.GetString("import.db")
	importUserID = viper.GetString("import.user")
	importFile = viper.GetString("import.file")
	importStrict = viper.GetBool("import.strict")

	if importDBPath == "" {
		return fmt.Errorf("db is required")
	}
	if importUserID == "" {
		return fmt.Errorf("user is required")
	}
	if importFile == "" {
		return fmt.Errorf("file is required")
	}

	info, err := os.Stat(importFile)
	if os.IsNotExist(err) {
		return fmt.Errorf("import file does not exist: %s", importFile)
	}
	if err != nil {
		return fmt.Errorf("error accessing import file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("import file is a directory, expected a file: %s", importFile)
	}

	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	errorHandler := NewCLIErrorHandler()

	importer, err := parsers.NewTransactionImporter(config.CreateImporterConfig())
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	transactions, stats, err := importer.ImportFile(ctx, importFile, importUserID)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	if stats.HasErrors() {
		fmt.Fprintf(os.Stderr, "%s\n", dedupErrors.FormatParseErrorsForUser(stats.Errors()))
		if importStrict {
			return fmt.Errorf("import aborted: %d rows failed to parse", stats.ErrorCount())
		}
	}

	store, err := storage.Open(importDBPath, nil)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}
	defer store.Close()

	if err := store.SaveTransactions(ctx, transactions); err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	fmt.Fprintf(os.Stderr, "Imported %d transactions for %s (%d rows skipped).\n",
		stats.RecordsValid, importUserID, stats.ErrorCount())

	return nil
}
