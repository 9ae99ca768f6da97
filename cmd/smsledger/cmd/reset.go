package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sms-ledger-service/internal/store"
)

var resetConfirmed bool

// resetCmd wipes the ledger and rewinds the checkpoint. Rules and learned
// corrections survive a reset.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all transactions and rewind the sync checkpoint",
	Long: `Reset empties the ledger and rewinds the sync checkpoint to zero, so the
next sync re-ingests the full inbox from scratch. Categorization rules and
learned corrections are kept.

Examples:
  smsledger reset --yes`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "confirm the reset (required)")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetConfirmed {
		return fmt.Errorf("reset deletes all transactions; re-run with --yes to confirm")
	}

	handler := NewCLIErrorHandler()
	ctx := context.Background()

	st, err := store.Open(viper.GetString("db"))
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	if err := st.DeleteAllTransactions(ctx); err != nil {
		os.Exit(handler.HandleError(err))
	}
	if err := st.SetLastSyncTime(ctx, 0); err != nil {
		os.Exit(handler.HandleError(err))
	}

	fmt.Println("Ledger cleared and checkpoint rewound.")
	return nil
}
