package cli

import (
	"fmt"
	"strings"
	"time"

	"credit-ledger-go/internal/common"
	"credit-ledger-go/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("types", "", "Comma-separated entry types to include")
	historyCmd.Flags().String("since", "", "Only entries created at or after this RFC3339 time")
	historyCmd.Flags().Int("limit", 20, "Page size (max 100)")
	historyCmd.Flags().Int("offset", 0, "Entries to skip")
}

// ─── balance ────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance USER_ID",
	Short: "Show a user's cached credit balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	credits, err := services.Ledger.GetBalance(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s credits\n", args[0], common.FormatCredits(credits))
	return nil
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history USER_ID",
	Short: "List a user's ledger entries, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	filter, err := historyFilter(cmd)
	if err != nil {
		return err
	}

	entries, err := services.Ledger.ListEntries(cmd.Context(), args[0], filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No entries for %s\n", args[0])
		return nil
	}

	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-22s %10s  %s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Type,
			common.FormatCredits(e.Amount),
			e.Id,
			e.Description)
	}
	return nil
}

func historyFilter(cmd *cobra.Command) (models.EntryFilter, error) {
	var filter models.EntryFilter

	types, _ := cmd.Flags().GetString("types")
	if types != "" {
		for _, raw := range strings.Split(types, ",") {
			t, ok := models.ParseEntryType(strings.TrimSpace(raw))
			if !ok {
				return filter, fmt.Errorf("unknown entry type %q", raw)
			}
			filter.Types = append(filter.Types, t)
		}
	}

	since, _ := cmd.Flags().GetString("since")
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, fmt.Errorf("--since must be RFC3339: %w", err)
		}
		filter.Since = t.UTC()
	}

	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.Offset, _ = cmd.Flags().GetInt("offset")
	return filter, nil
}
