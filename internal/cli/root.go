package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"credit-ledger-go/internal/common"
	"credit-ledger-go/internal/config"
	"credit-ledger-go/internal/models"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ─── Root ───────────────────────────────────────────────────────────────────
// Every subcommand except help opens the configured store, runs one ledger
// operation and drains the audit dispatcher before exiting.

// openServices is swapped in tests to share one in-memory ledger across runs.
var openServices = func(ctx context.Context, cfg *models.Config) (*common.Services, error) {
	return common.InitializeServices(ctx, cfg)
}

var (
	services *common.Services
	appCfg   *models.Config
	timeNow  = func() time.Time { return time.Now().UTC() }
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the credit ledger",
	Long: `ledgerctl grants, consumes and refunds user credits, runs expiration
sweeps and reconciles cached balances against the entry log. It reads the
same environment (or .env file) as ledgerd.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, args []string, out io.Writer) error {
	defer teardown()
	resetFlags(rootCmd)

	ctx = models.WithRequestContext(ctx, &models.RequestContext{
		Source: "cli",
		Actor:  os.Getenv("USER"),
	})

	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
		cfg.Database.Driver = driver
	}

	svc, err := openServices(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}

	appCfg = cfg
	services = svc
	return nil
}

func teardown() {
	if services != nil {
		services.Close()
		services = nil
	}
}

// resetFlags restores defaults so repeated in-process runs start clean.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func init() {
	rootCmd.PersistentFlags().String("driver", "", "Override DB_DRIVER (sqlite3, pgx or memory)")
}
