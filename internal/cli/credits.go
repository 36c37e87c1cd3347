package cli

import (
	"fmt"
	"strconv"

	"credit-ledger-go/internal/common"
	"credit-ledger-go/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(refundCmd)

	grantCmd.Flags().String("preset", "", "Grant preset from GRANTS_FILE (e.g. register, daily-signin)")
	grantCmd.Flags().String("type", "", "Entry type when not using a preset")
	grantCmd.Flags().Int64("amount", 0, "Credits to grant when not using a preset")
	grantCmd.Flags().Int("expire-days", 0, "Days until the grant expires (0 never expires)")
	grantCmd.Flags().String("description", "", "Entry description (defaults to \"<TYPE> via ledgerctl\")")
	grantCmd.Flags().String("payment-id", "", "External payment reference")
	grantCmd.Flags().Duration("once-per", 0, "Skip the grant if one of the same type was made within this period (e.g. 24h)")

	consumeCmd.Flags().String("description", defaultConsumeDescription, "Entry description")

	refundCmd.Flags().String("reason", "", "Why the credits are returned (required)")
	refundCmd.Flags().String("original", "", "Id of the entry being refunded")
	_ = refundCmd.MarkFlagRequired("reason")
}

// ─── grant ──────────────────────────────────────────────────────────────────

var grantCmd = &cobra.Command{
	Use:   "grant USER_ID",
	Short: "Grant credits to a user",
	Long: `Grant credits either from a named preset in the grants file or from
explicit --type and --amount flags.`,
	Args: cobra.ExactArgs(1),
	RunE: runGrant,
}

func runGrant(cmd *cobra.Command, args []string) error {
	params, err := grantParams(cmd, args[0])
	if err != nil {
		return err
	}

	if period, _ := cmd.Flags().GetDuration("once-per"); period > 0 {
		granted, err := services.Ledger.HasEntrySince(cmd.Context(), params.UserId, params.Type, timeNow().Add(-period))
		if err != nil {
			return err
		}
		if granted {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already received %s within %s, skipping\n", params.UserId, params.Type, period)
			return nil
		}
	}

	entry, err := services.Ledger.AddCredits(cmd.Context(), params)
	if err != nil {
		return err
	}

	printEntry(cmd, entry)
	return nil
}

func grantParams(cmd *cobra.Command, userId string) (models.AddCreditsParams, error) {
	paymentId, _ := cmd.Flags().GetString("payment-id")

	if preset, _ := cmd.Flags().GetString("preset"); preset != "" {
		presets, err := common.LoadGrantPresets(appCfg.GrantsFile)
		if err != nil {
			return models.AddCreditsParams{}, err
		}
		p, ok := common.FindGrantPreset(presets, preset)
		if !ok {
			return models.AddCreditsParams{}, fmt.Errorf("unknown grant preset %q", preset)
		}
		return p.Params(userId, paymentId), nil
	}

	rawType, _ := cmd.Flags().GetString("type")
	t, ok := models.ParseEntryType(rawType)
	if !ok {
		return models.AddCreditsParams{}, fmt.Errorf("--preset or a valid --type is required")
	}
	amount, _ := cmd.Flags().GetInt64("amount")
	description, _ := cmd.Flags().GetString("description")
	if description == "" {
		description = fmt.Sprintf("%s via ledgerctl", t)
	}

	params := models.AddCreditsParams{
		UserId:      userId,
		Amount:      amount,
		Type:        t,
		Description: description,
		PaymentId:   paymentId,
	}
	if days, _ := cmd.Flags().GetInt("expire-days"); days > 0 {
		params.ExpireDays = &days
	}
	return params, nil
}

// ─── consume ────────────────────────────────────────────────────────────────

const defaultConsumeDescription = "ledgerctl consume"

var consumeCmd = &cobra.Command{
	Use:   "consume USER_ID AMOUNT",
	Short: "Spend credits, soonest-expiring first",
	Args:  cobra.ExactArgs(2),
	RunE:  runConsume,
}

func runConsume(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}
	description, _ := cmd.Flags().GetString("description")
	if description == "" {
		description = defaultConsumeDescription
	}

	entry, err := services.Ledger.ConsumeCredits(cmd.Context(), args[0], amount, description)
	if err != nil {
		return err
	}

	printEntry(cmd, entry)
	return nil
}

// ─── refund ─────────────────────────────────────────────────────────────────

var refundCmd = &cobra.Command{
	Use:   "refund USER_ID AMOUNT",
	Short: "Return credits to a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runRefund,
}

func runRefund(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}
	reason, _ := cmd.Flags().GetString("reason")
	original, _ := cmd.Flags().GetString("original")

	entry, err := services.Ledger.RefundCredits(cmd.Context(), models.RefundParams{
		UserId:                args[0],
		Amount:                amount,
		Reason:                reason,
		OriginalTransactionId: original,
	})
	if err != nil {
		return err
	}

	printEntry(cmd, entry)
	return nil
}

func printEntry(cmd *cobra.Command, entry *models.Entry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ %s %s credits for %s\n", entry.Type, common.FormatCredits(entry.Amount), entry.UserId)
	fmt.Fprintf(out, "   Entry: %s\n", entry.Id)
	if entry.ExpirationDate != nil {
		fmt.Fprintf(out, "   Expires: %s\n", entry.ExpirationDate.Format("2006-01-02 15:04:05"))
	}

	if balance, err := services.Ledger.GetBalance(cmd.Context(), entry.UserId); err == nil {
		fmt.Fprintf(out, "   Balance: %s\n", common.FormatCredits(balance))
	}
}
