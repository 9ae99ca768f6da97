package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sms-ledger-service/cmd/smsledger/config"
	"sms-ledger-service/internal/enrich"
	"sms-ledger-service/internal/merge"
	"sms-ledger-service/internal/recurring"
	"sms-ledger-service/internal/source"
	"sms-ledger-service/internal/store"
	"sms-ledger-service/internal/syncer"
	"sms-ledger-service/pkg/errors"
)

// Flags for the sync command
var (
	inboxFile          string
	keywordFile        string
	categoryFile       string
	outputFormat       string
	timeDriftMs        int64
	strictCounterparty bool
	syncTimeout        time.Duration
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest new messages from an inbox export into the ledger",
	Long: `Sync reads an exported message inbox (CSV with body, sender, and
timestamp columns), parses the transactional messages, enriches them with
your rules and learned corrections, merges them into the ledger without
duplicates, and re-detects recurring payments.

Only messages newer than the last successful sync are processed. Re-running
sync over the same export is safe.

Examples:
  # Basic sync
  smsledger sync --inbox inbox.csv

  # Custom keyword tables and JSON report
  smsledger sync --inbox inbox.csv --keyword-file keywords.yaml --output-format json

  # Treat different merchants as distinct even when amount and time collide
  smsledger sync --inbox inbox.csv --strict-counterparty`,

	PreRunE: validateSyncFlags,
	RunE:    runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&inboxFile, "inbox", "i", "", "path to the inbox CSV export (required)")
	syncCmd.Flags().StringVar(&keywordFile, "keyword-file", "", "YAML file overriding the parser keyword tables")
	syncCmd.Flags().StringVar(&categoryFile, "category-file", "", "YAML file replacing the category table")
	syncCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "report format: console, json")
	syncCmd.Flags().Int64Var(&timeDriftMs, "time-drift-ms", 0, "duplicate time window in milliseconds (default 300000)")
	syncCmd.Flags().BoolVar(&strictCounterparty, "strict-counterparty", false, "require compatible counterparties for deduplication")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 5*time.Minute, "maximum duration for the sync run")

	syncCmd.MarkFlagRequired("inbox")

	viper.BindPFlag("inbox", syncCmd.Flags().Lookup("inbox"))
	viper.BindPFlag("keyword-file", syncCmd.Flags().Lookup("keyword-file"))
	viper.BindPFlag("category-file", syncCmd.Flags().Lookup("category-file"))
	viper.BindPFlag("time-drift-ms", syncCmd.Flags().Lookup("time-drift-ms"))
	viper.BindPFlag("strict-counterparty", syncCmd.Flags().Lookup("strict-counterparty"))
}

func validateSyncFlags(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(inboxFile); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "inbox", inboxFile, err).
			WithSuggestion("Check that the inbox export path is correct")
	}
	if outputFormat != "console" && outputFormat != "json" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", outputFormat, nil).
			WithSuggestion("Supported formats are console and json")
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	p, err := config.CreateParser(keywordFile, categoryFile)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	mergeConfig, err := config.CreateMergeConfig(timeDriftMs, strictCounterparty)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	st, err := store.Open(viper.GetString("db"))
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	orch := syncer.New(
		source.NewCSVMessageSource(inboxFile, nil),
		st,
		p,
		enrich.New(st, st),
		merge.NewEngine(mergeConfig),
		recurring.NewDetector(config.CreateRecurringConfig()),
	)

	report, err := orch.Sync(ctx)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return printSyncReport(report)
}

func printSyncReport(report *syncer.Report) error {
	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	fmt.Printf("Sync %s completed in %s\n", report.RunID, report.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Messages read:    %d\n", report.MessagesRead)
	fmt.Printf("  Parsed:           %d\n", report.MessagesParsed)
	fmt.Printf("  Ignored as noise: %d\n", report.MessagesIgnored)
	fmt.Printf("  Appended:         %d\n", report.Appended)
	fmt.Printf("  Enriched:         %d\n", report.Enriched)
	fmt.Printf("  Ledger size:      %d\n", report.LedgerSize)
	return nil
}
