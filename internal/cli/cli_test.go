package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"credit-ledger-go/internal/audit"
	"credit-ledger-go/internal/common"
	"credit-ledger-go/internal/ledger"
	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"
	"credit-ledger-go/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useMemoryLedger makes every CLI run in the test share one in-memory ledger.
func useMemoryLedger(t *testing.T) *memory.Store {
	t.Helper()

	st := memory.New()
	svc := ledger.NewService(st, audit.NopSink{}, models.LedgerConfig{SweepOnConsume: true})

	original := openServices
	openServices = func(context.Context, *models.Config) (*common.Services, error) {
		return &common.Services{Store: st, Ledger: svc}, nil
	}
	t.Cleanup(func() { openServices = original })

	grants := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(grants, []byte(`
grants:
  - name: register
    type: REGISTER_GIFT
    amount: 100
    description: Registration gift
`), 0o600))
	t.Setenv("GRANTS_FILE", grants)

	return st
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestGrantConsumeBalance(t *testing.T) {
	useMemoryLedger(t)

	out, err := runCLI(t, "grant", "u1", "--preset", "register")
	require.NoError(t, err)
	assert.Contains(t, out, "REGISTER_GIFT 100 credits for u1")

	out, err = runCLI(t, "grant", "u1", "--type", "TASK_REWARD", "--amount", "1500", "--expire-days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Expires:")
	assert.Contains(t, out, "Balance: 1,600")

	out, err = runCLI(t, "consume", "u1", "600", "--description", "batch job")
	require.NoError(t, err)
	assert.Contains(t, out, "USAGE -600 credits")

	out, err = runCLI(t, "balance", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1: 1,000 credits\n", out)
}

func TestGrantAndConsumeDefaultDescriptions(t *testing.T) {
	useMemoryLedger(t)

	_, err := runCLI(t, "grant", "u1", "--type", "TASK_REWARD", "--amount", "20")
	require.NoError(t, err)
	_, err = runCLI(t, "consume", "u1", "4")
	require.NoError(t, err)

	out, err := runCLI(t, "history", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "TASK_REWARD via ledgerctl")
	assert.Contains(t, out, "ledgerctl consume")

	_, err = runCLI(t, "consume", "u1", "1", "--description", "")
	require.NoError(t, err)
}

func TestFlagsDoNotLeakBetweenRuns(t *testing.T) {
	useMemoryLedger(t)

	_, err := runCLI(t, "grant", "u1", "--preset", "register")
	require.NoError(t, err)

	_, err = runCLI(t, "grant", "u1")
	assert.ErrorContains(t, err, "--preset or a valid --type is required")
}

func TestGrantOncePerPeriod(t *testing.T) {
	useMemoryLedger(t)

	args := []string{"grant", "u1", "--type", "DAILY_SIGNIN", "--amount", "5", "--once-per", "24h"}

	out, err := runCLI(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "DAILY_SIGNIN 5 credits")

	out, err = runCLI(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "already received DAILY_SIGNIN")

	out, err = runCLI(t, "balance", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1: 5 credits\n", out)
}

func TestConsumeErrors(t *testing.T) {
	useMemoryLedger(t)

	_, err := runCLI(t, "consume", "u1", "ten")
	assert.ErrorContains(t, err, "invalid amount")

	_, err = runCLI(t, "consume", "u1", "10")
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

	_, err = runCLI(t, "grant", "u1", "--preset", "missing")
	assert.ErrorContains(t, err, "unknown grant preset")
}

func TestRefundRequiresReason(t *testing.T) {
	useMemoryLedger(t)

	_, err := runCLI(t, "refund", "u1", "5")
	assert.Error(t, err)

	out, err := runCLI(t, "refund", "u1", "5", "--reason", "goodwill")
	require.NoError(t, err)
	assert.Contains(t, out, "REFUND 5 credits for u1")
}

func TestHistory(t *testing.T) {
	useMemoryLedger(t)

	_, err := runCLI(t, "grant", "u1", "--preset", "register")
	require.NoError(t, err)
	_, err = runCLI(t, "consume", "u1", "10", "--description", "chat")
	require.NoError(t, err)

	out, err := runCLI(t, "history", "u1", "--types", "USAGE")
	require.NoError(t, err)
	assert.Contains(t, out, "USAGE")
	assert.Contains(t, out, "chat")
	assert.NotContains(t, out, "REGISTER_GIFT")

	_, err = runCLI(t, "history", "u1", "--types", "BONUS")
	assert.ErrorContains(t, err, "unknown entry type")

	out, err = runCLI(t, "history", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No entries for nobody")
}

func TestReconcileAndReport(t *testing.T) {
	st := useMemoryLedger(t)

	_, err := runCLI(t, "grant", "u1", "--preset", "register")
	require.NoError(t, err)
	_, err = runCLI(t, "grant", "u2", "--type", "DAILY_SIGNIN", "--amount", "5", "--expire-days", "3")
	require.NoError(t, err)

	out, err := runCLI(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Reconciled 2 users, 0 with drift")

	out, err = runCLI(t, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "USER CREDIT REPORT")
	assert.Contains(t, out, "never expires")
	assert.Contains(t, out, "SUMMARY: 2 of 2 users hold credits (105 total)")

	err = st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateBalance(ctx, "u2", 9, timeNow())
	})
	require.NoError(t, err)

	out, err = runCLI(t, "reconcile", "--user", "u2")
	assert.ErrorIs(t, err, ledger.ErrBalanceDrift)
	assert.Contains(t, out, "✗ u2")
}

func TestSweepCommand(t *testing.T) {
	useMemoryLedger(t)

	out, err := runCLI(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Swept 0 users")

	out, err = runCLI(t, "sweep", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "u1: expired 0 credits from 0 entries")
}
