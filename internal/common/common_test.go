package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"credit-ledger-go/internal/audit"
	"credit-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrants(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadGrantPresets(t *testing.T) {
	path := writeGrants(t, `
grants:
  - name: register
    type: REGISTER_GIFT
    amount: 100
    description: Welcome gift
  - name: signin
    type: DAILY_SIGNIN
    amount: 5
    expire_days: 7
`)

	presets, err := LoadGrantPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)

	signin, ok := FindGrantPreset(presets, "signin")
	require.True(t, ok)

	params := signin.Params("u1", "")
	assert.Equal(t, models.EntryDailySignin, params.Type)
	assert.Equal(t, int64(5), params.Amount)
	assert.Equal(t, "signin", params.Description)
	require.NotNil(t, params.ExpireDays)
	assert.Equal(t, 7, *params.ExpireDays)

	register, _ := FindGrantPreset(presets, "register")
	assert.Nil(t, register.Params("u1", "pay_1").ExpireDays)

	_, ok = FindGrantPreset(presets, "missing")
	assert.False(t, ok)
}

func TestLoadGrantPresetsValidation(t *testing.T) {
	tests := map[string]string{
		"missing name": "grants:\n  - type: REGISTER_GIFT\n    amount: 1\n",
		"usage type":   "grants:\n  - name: x\n    type: USAGE\n    amount: 1\n",
		"zero amount":  "grants:\n  - name: x\n    type: TASK_REWARD\n    amount: 0\n",
		"duplicate":    "grants:\n  - name: x\n    type: TASK_REWARD\n    amount: 1\n  - name: x\n    type: TASK_REWARD\n    amount: 2\n",
		"bad yaml":     "grants: [",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadGrantPresets(writeGrants(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadGrantPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

type fakeLister struct {
	ids []string
	err error
}

func (f fakeLister) ListUserIds(context.Context) ([]string, error) { return f.ids, f.err }

func TestResolveUsers(t *testing.T) {
	ctx := context.Background()

	users, err := ResolveUsers(ctx, fakeLister{ids: []string{"a", "b"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, users)

	users, err = ResolveUsers(ctx, fakeLister{err: errors.New("down")}, "only")
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, users)

	_, err = ResolveUsers(ctx, fakeLister{err: errors.New("down")}, "")
	assert.Error(t, err)
}

func TestFormatCredits(t *testing.T) {
	assert.Equal(t, "0", FormatCredits(0))
	assert.Equal(t, "999", FormatCredits(999))
	assert.Equal(t, "1,250", FormatCredits(1250))
	assert.Equal(t, "-40", FormatCredits(-40))
	assert.Equal(t, "-1,000,000", FormatCredits(-1000000))
}

func TestFormatExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 5)

	assert.Equal(t, "never expires", FormatExpiry(nil, now))
	assert.Equal(t, "expired 2025-02-28", FormatExpiry(&past, now))
	assert.Equal(t, "expires 2025-03-06", FormatExpiry(&future, now))
}

func TestNewAuditSink(t *testing.T) {
	ctx := context.Background()

	sink, err := NewAuditSink(ctx, models.AuditConfig{Sink: "log"})
	require.NoError(t, err)
	assert.IsType(t, audit.LogSink{}, sink)

	sink, err = NewAuditSink(ctx, models.AuditConfig{Sink: "none"})
	require.NoError(t, err)
	assert.IsType(t, audit.NopSink{}, sink)

	_, err = NewAuditSink(ctx, models.AuditConfig{Sink: "formance"})
	assert.Error(t, err, "formance without credentials must fail")

	_, err = NewAuditSink(ctx, models.AuditConfig{Sink: "kafka"})
	assert.Error(t, err)
}

func TestInitializeServicesWithMemoryStore(t *testing.T) {
	cfg := &models.Config{
		Database: models.DatabaseConfig{Driver: "memory"},
		Audit:    models.AuditConfig{Sink: "none"},
	}

	services, err := InitializeServices(context.Background(), cfg)
	require.NoError(t, err)
	defer services.Close()

	_, err = services.Ledger.AddCredits(context.Background(), models.AddCreditsParams{
		UserId: "u1", Amount: 10, Type: models.EntryManualAdjustment, Description: "seed",
	})
	require.NoError(t, err)

	balance, err := services.Ledger.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}
