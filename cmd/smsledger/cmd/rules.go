package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sms-ledger-service/internal/models"
	"sms-ledger-service/internal/store"
)

// Flags for the rules subcommands
var (
	rulePattern  string
	ruleCategory string
)

// rulesCmd groups the categorization rule management subcommands.
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage categorization rules",
	Long: `Rules map merchant name patterns to categories. They are applied during
sync before learned corrections and win over them.

Examples:
  smsledger rules add --pattern swiggy --category "Food & Dining"
  smsledger rules list
  smsledger rules remove --pattern swiggy`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all categorization rules",
	RunE:  runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace a categorization rule",
	RunE:  runRulesAdd,
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a categorization rule",
	RunE:  runRulesRemove,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesRemoveCmd)

	rulesAddCmd.Flags().StringVarP(&rulePattern, "pattern", "p", "", "merchant name pattern, matched as a case-insensitive substring (required)")
	rulesAddCmd.Flags().StringVarP(&ruleCategory, "category", "c", "", "category to assign (required)")
	rulesAddCmd.MarkFlagRequired("pattern")
	rulesAddCmd.MarkFlagRequired("category")

	rulesRemoveCmd.Flags().StringVarP(&rulePattern, "pattern", "p", "", "merchant name pattern of the rule to remove (required)")
	rulesRemoveCmd.MarkFlagRequired("pattern")
}

func openRuleStore() (*store.Store, error) {
	return store.Open(viper.GetString("db"))
}

func runRulesList(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	st, err := openRuleStore()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	rules, err := st.GetAllRules(context.Background())
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if len(rules) == 0 {
		fmt.Println("No rules defined.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATTERN\tCATEGORY")
	for _, rule := range rules {
		fmt.Fprintf(w, "%s\t%s\n", rule.MerchantPattern, rule.Category)
	}
	return w.Flush()
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	st, err := openRuleStore()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	rule := models.CategorizationRule{MerchantPattern: rulePattern, Category: ruleCategory}
	if err := st.UpsertRule(context.Background(), rule); err != nil {
		os.Exit(handler.HandleError(err))
	}

	fmt.Printf("Rule saved: %q -> %s\n", rule.MerchantPattern, rule.Category)
	return nil
}

func runRulesRemove(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	st, err := openRuleStore()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	deleted, err := st.DeleteRule(context.Background(), rulePattern)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	if !deleted {
		fmt.Printf("No rule with pattern %q.\n", rulePattern)
		return nil
	}

	fmt.Printf("Rule removed: %q\n", rulePattern)
	return nil
}
