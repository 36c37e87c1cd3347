package cli

import (
	"errors"
	"fmt"

	"credit-ledger-go/internal/common"
	"credit-ledger-go/internal/ledger"
	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(reportCmd)

	sweepCmd.Flags().String("user", "", "Sweep a single user (default: every user with expired credits)")
	reconcileCmd.Flags().String("user", "", "Reconcile a single user (default: every user)")
	reportCmd.Flags().String("user", "", "Report on a single user (default: every user)")
}

// ─── sweep ──────────────────────────────────────────────────────────────────

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire credits whose expiration date has passed",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if userId, _ := cmd.Flags().GetString("user"); userId != "" {
		result, err := services.Ledger.SweepExpired(cmd.Context(), userId)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: expired %s credits from %d entries\n",
			userId, common.FormatCredits(result.ExpiredCredits), result.EntriesProcessed)
		return nil
	}

	summary, err := scheduler.NewSweeper(services.Ledger, appCfg.Scheduler).RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Swept %d users, expired %s credits (%d failed)\n",
		summary.Users, common.FormatCredits(summary.ExpiredCredits), summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d user sweeps failed", summary.Failed)
	}
	return nil
}

// ─── reconcile ──────────────────────────────────────────────────────────────

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare cached balances with outstanding entry remainders",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	userFilter, _ := cmd.Flags().GetString("user")
	users, err := common.ResolveUsers(cmd.Context(), services.Ledger, userFilter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	drifted := 0
	for _, userId := range users {
		rec, err := services.Ledger.Reconcile(cmd.Context(), userId)
		switch {
		case errors.Is(err, ledger.ErrBalanceDrift):
			drifted++
			fmt.Fprintf(out, "✗ %s: cached %s, outstanding %s (diff %s)\n", userId,
				common.FormatCredits(rec.CachedBalance),
				common.FormatCredits(rec.OutstandingSum),
				common.FormatCredits(rec.Difference))
		case err != nil:
			return fmt.Errorf("reconcile %s: %w", userId, err)
		default:
			fmt.Fprintf(out, "✓ %s: %s\n", userId, common.FormatCredits(rec.CachedBalance))
		}
	}

	fmt.Fprintf(out, "Reconciled %d users, %d with drift\n", len(users), drifted)
	if drifted > 0 {
		return fmt.Errorf("%w: %d users", ledger.ErrBalanceDrift, drifted)
	}
	return nil
}

// ─── report ─────────────────────────────────────────────────────────────────

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print balances and open grants per user",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

type reportStats struct {
	totalUsers      int
	usersWithCredit int
	totalCredits    int64
}

func runReport(cmd *cobra.Command, _ []string) error {
	userFilter, _ := cmd.Flags().GetString("user")
	users, err := common.ResolveUsers(cmd.Context(), services.Ledger, userFilter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	common.PrintHeader(out, "USER CREDIT REPORT", common.DefaultWidth)

	var stats reportStats
	for _, userId := range users {
		stats.totalUsers++

		credits, err := reportUser(cmd, userId)
		if err != nil {
			zap.L().Error("Failed to process user",
				zap.String("user_id", userId),
				zap.Error(err))
			continue
		}
		if credits > 0 {
			stats.usersWithCredit++
			stats.totalCredits += credits
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d of %d users hold credits (%s total)",
		stats.usersWithCredit, stats.totalUsers, common.FormatCredits(stats.totalCredits))
	common.PrintFooter(out, summary, common.DefaultWidth)
	return nil
}

func reportUser(cmd *cobra.Command, userId string) (int64, error) {
	ctx := cmd.Context()

	credits, err := services.Ledger.GetBalance(ctx, userId)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	entries, err := services.Ledger.ListEntries(ctx, userId, models.EntryFilter{Limit: 100})
	if err != nil {
		return 0, fmt.Errorf("failed to list entries: %w", err)
	}

	var open []models.Entry
	for _, e := range entries {
		if e.Type.IsEarn() && e.Remaining() > 0 {
			open = append(open, e)
		}
	}

	out := cmd.OutOrStdout()
	now := timeNow()
	fmt.Fprintf(out, "\n┌─ User: %s\n", userId)
	fmt.Fprintf(out, "│  Balance: %s\n", common.FormatCredits(credits))
	for i, e := range open {
		isLast := i == len(open)-1
		fmt.Fprintf(out, "%s %-20s %10s of %-10s %s\n",
			common.BoxPrefix(isLast),
			e.Type,
			common.FormatCredits(e.Remaining()),
			common.FormatCredits(e.Amount),
			common.FormatExpiry(e.ExpirationDate, now))
		fmt.Fprintf(out, "%s   %s\n", common.BoxDetailPrefix(isLast), e.Id)
	}

	return credits, nil
}
