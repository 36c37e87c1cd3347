package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Driver:       DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	}

	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		service.Close()
	}
	return service, cleanup
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// insertGrant writes a balance increment and an earn entry in one unit.
func insertGrant(t *testing.T, s *Service, userId, id string, amount int64, createdAt time.Time, expiration *time.Time) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		b, err := tx.EnsureBalance(ctx, userId, createdAt)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, userId, b.CurrentCredits+amount, createdAt); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, &models.Entry{
			Id:              id,
			UserId:          userId,
			Type:            models.EntryRegisterGift,
			Amount:          amount,
			RemainingAmount: int64Ptr(amount),
			Description:     "gift " + id,
			ExpirationDate:  expiration,
			CreatedAt:       createdAt,
			UpdatedAt:       createdAt,
		})
	})
	if err != nil {
		t.Fatalf("Failed to insert grant %s: %v", id, err)
	}
}

func TestNewService_Validation(t *testing.T) {
	ctx := context.Background()
	base := models.DatabaseConfig{
		Driver:       DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "x.db"),
		MaxOpenConns: 1,
		PingTimeout:  time.Second,
	}

	tests := []struct {
		name   string
		mutate func(*models.DatabaseConfig)
	}{
		{"empty path", func(c *models.DatabaseConfig) { c.Path = "" }},
		{"no connections", func(c *models.DatabaseConfig) { c.MaxOpenConns = 0 }},
		{"negative idle", func(c *models.DatabaseConfig) { c.MaxIdleConns = -1 }},
		{"no ping timeout", func(c *models.DatabaseConfig) { c.PingTimeout = 0 }},
		{"postgres without url", func(c *models.DatabaseConfig) { c.Driver = DriverPostgres }},
		{"unknown driver", func(c *models.DatabaseConfig) { c.Driver = "oracle" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewService(ctx, cfg); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestSqliteDSN(t *testing.T) {
	dsn := sqliteDSN("/tmp/ledger.db", 2*time.Second)
	want := "/tmp/ledger.db?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=2000&_txlock=immediate&_loc=UTC"
	if dsn != want {
		t.Errorf("Expected DSN %s, got %s", want, dsn)
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT a FROM t WHERE x = ? AND y > ?"

	if got := sqliteDialect.rebind(query); got != query {
		t.Errorf("SQLite rebind should be a no-op, got %s", got)
	}
	if got := postgresDialect.rebind(query); got != "SELECT a FROM t WHERE x = $1 AND y > $2" {
		t.Errorf("Unexpected Postgres rebind: %s", got)
	}
	if got := postgresDialect.locking(query); got != "SELECT a FROM t WHERE x = $1 AND y > $2 FOR UPDATE" {
		t.Errorf("Unexpected Postgres locking query: %s", got)
	}
	if got := sqliteDialect.locking(query); got != query {
		t.Errorf("SQLite locking should add nothing, got %s", got)
	}
}

func TestLikeSuffix(t *testing.T) {
	if got := likeSuffix("abc"); got != "%abc" {
		t.Errorf("Expected %%abc, got %s", got)
	}
	if got := likeSuffix(`50%_off\`); got != `%50\%\_off\\` {
		t.Errorf("Wildcards not escaped: %s", got)
	}
}

func TestGetBalance_NoBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.GetBalance(context.Background(), "user1")
	if !errors.Is(err, store.ErrBalanceNotFound) {
		t.Errorf("Expected ErrBalanceNotFound, got %v", err)
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	insertGrant(t, service, "user1", "e1", 100, testNow, nil)

	balance, err := service.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.CurrentCredits != 100 {
		t.Errorf("Expected balance 100, got %d", balance.CurrentCredits)
	}
	if !balance.UpdatedAt.Equal(testNow) {
		t.Errorf("Expected updated_at %v, got %v", testNow, balance.UpdatedAt)
	}

	entry, err := service.GetEntry(ctx, "user1", "e1")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry.Seq == 0 {
		t.Errorf("Expected seq to be assigned")
	}
	if entry.Remaining() != 100 || entry.Type != models.EntryRegisterGift {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.ExpirationDate != nil {
		t.Errorf("Expected no expiration date, got %v", entry.ExpirationDate)
	}
	if !entry.CreatedAt.Equal(testNow) || entry.CreatedAt.Location() != time.UTC {
		t.Errorf("Expected created_at %v in UTC, got %v", testNow, entry.CreatedAt)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	insertGrant(t, service, "user1", "e1", 100, testNow, nil)

	boom := errors.New("boom")
	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateBalance(ctx, "user1", 5, testNow); err != nil {
			return err
		}
		if err := tx.UpdateRemaining(ctx, "e1", 5, testNow); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	balance, _ := service.GetBalance(ctx, "user1")
	if balance.CurrentCredits != 100 {
		t.Errorf("Expected balance 100 after rollback, got %d", balance.CurrentCredits)
	}
	entry, _ := service.GetEntry(ctx, "user1", "e1")
	if entry.Remaining() != 100 {
		t.Errorf("Expected remaining 100 after rollback, got %d", entry.Remaining())
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	insertGrant(t, service, "user1", "e1", 100, testNow, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("Expected panic to propagate")
			}
		}()
		_ = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.UpdateBalance(ctx, "user1", 1, testNow); err != nil {
				return err
			}
			panic("unexpected")
		})
	}()

	balance, _ := service.GetBalance(ctx, "user1")
	if balance.CurrentCredits != 100 {
		t.Errorf("Expected balance 100 after panic, got %d", balance.CurrentCredits)
	}
}

func TestUpdateBalance_RejectsNegativeAndMissing(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	insertGrant(t, service, "user1", "e1", 10, testNow, nil)

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateBalance(ctx, "user1", -1, testNow)
	})
	if err == nil {
		t.Errorf("Expected negative balance to be rejected")
	}

	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateBalance(ctx, "ghost", 1, testNow)
	})
	if !errors.Is(err, store.ErrBalanceNotFound) {
		t.Errorf("Expected ErrBalanceNotFound, got %v", err)
	}
}

func TestLockSpendableEntries_Order(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	insertGrant(t, service, "user1", "never-old", 10, testNow, nil)
	insertGrant(t, service, "user1", "late", 10, testNow, timePtr(testNow.Add(72*time.Hour)))
	insertGrant(t, service, "user1", "soon-b", 10, testNow.Add(time.Minute), timePtr(testNow.Add(24*time.Hour)))
	insertGrant(t, service, "user1", "soon-a", 10, testNow, timePtr(testNow.Add(24*time.Hour)))
	insertGrant(t, service, "user1", "never-new", 10, testNow.Add(time.Hour), nil)
	insertGrant(t, service, "user1", "expired", 10, testNow, timePtr(testNow.Add(time.Hour)))
	insertGrant(t, service, "user2", "other", 10, testNow, nil)

	var got []string
	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		entries, err := tx.LockSpendableEntries(ctx, "user1", testNow.Add(2*time.Hour))
		for _, e := range entries {
			got = append(got, e.Id)
		}
		return err
	})
	if err != nil {
		t.Fatalf("LockSpendableEntries failed: %v", err)
	}

	want := []string{"soon-a", "soon-b", "late", "never-old", "never-new"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s (full order %v)", i, want[i], got[i], got)
		}
	}
}

func TestExpiredEntriesAndSweepMarking(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	insertGrant(t, service, "user1", "old", 30, testNow, timePtr(testNow.Add(time.Hour)))
	insertGrant(t, service, "user1", "fresh", 30, testNow, timePtr(testNow.Add(48*time.Hour)))
	insertGrant(t, service, "user2", "old2", 5, testNow, timePtr(testNow.Add(time.Hour)))
	later := testNow.Add(2 * time.Hour)

	users, err := service.ListUsersWithExpiredCredits(ctx, later, 10)
	if err != nil {
		t.Fatalf("ListUsersWithExpiredCredits failed: %v", err)
	}
	if len(users) != 2 || users[0] != "user1" || users[1] != "user2" {
		t.Errorf("Expected [user1 user2], got %v", users)
	}

	users, err = service.ListUsersWithExpiredCredits(ctx, later, 1)
	if err != nil || len(users) != 1 {
		t.Errorf("Expected limit to apply, got %v (%v)", users, err)
	}

	err = service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		expired, err := tx.LockExpiredEntries(ctx, "user1", later)
		if err != nil {
			return err
		}
		if len(expired) != 1 || expired[0].Id != "old" {
			t.Errorf("Expected only 'old' expired, got %+v", expired)
		}
		return tx.MarkExpirationProcessed(ctx, "old", later)
	})
	if err != nil {
		t.Fatalf("Sweep marking failed: %v", err)
	}

	entry, _ := service.GetEntry(ctx, "user1", "old")
	if entry.Remaining() != 0 || entry.ExpirationProcessedAt == nil {
		t.Errorf("Expected processed entry with zero remainder, got %+v", entry)
	}

	users, _ = service.ListUsersWithExpiredCredits(ctx, later, 10)
	if len(users) != 1 || users[0] != "user2" {
		t.Errorf("Expected only user2 left, got %v", users)
	}

	sum, err := service.SumOutstanding(ctx, "user1")
	if err != nil {
		t.Fatalf("SumOutstanding failed: %v", err)
	}
	if sum != 30 {
		t.Errorf("Expected outstanding 30, got %d", sum)
	}
}

func TestHasRefundReferencing(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.EnsureBalance(ctx, "user1", testNow); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, &models.Entry{
			Id:              "r1",
			UserId:          "user1",
			Type:            models.EntryRefund,
			Amount:          10,
			RemainingAmount: int64Ptr(10),
			Description:     "Refund: failed [original:tx_42]",
			CreatedAt:       testNow,
			UpdatedAt:       testNow,
		})
	})
	if err != nil {
		t.Fatalf("Failed to insert refund: %v", err)
	}

	tests := []struct {
		userId, original string
		want             bool
	}{
		{"user1", "tx_42", true},
		{"user1", "tx_4", false},
		{"user1", "about", false},
		{"user1", "tx%42", false},
		{"user1", "tx_99", false},
		{"user2", "tx_42", false},
	}
	for _, tt := range tests {
		err := service.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			got, err := tx.HasRefundReferencing(ctx, tt.userId, tt.original)
			if err != nil {
				return err
			}
			if got != tt.want {
				t.Errorf("HasRefundReferencing(%s, %s) = %v, want %v", tt.userId, tt.original, got, tt.want)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("HasRefundReferencing failed: %v", err)
		}
	}
}

func TestListEntries_Filters(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c", "d"} {
		insertGrant(t, service, "user1", id, 1, testNow.Add(time.Duration(i)*time.Hour), nil)
	}

	entries, err := service.ListEntries(ctx, "user1", models.EntryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Id != "d" || entries[1].Id != "c" {
		t.Errorf("Expected [d c], got %+v", entries)
	}

	entries, _ = service.ListEntries(ctx, "user1", models.EntryFilter{Limit: 2, Offset: 2})
	if len(entries) != 2 || entries[0].Id != "b" {
		t.Errorf("Expected page starting at b, got %+v", entries)
	}

	entries, _ = service.ListEntries(ctx, "user1", models.EntryFilter{Since: testNow.Add(2 * time.Hour)})
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries since +2h, got %d", len(entries))
	}

	entries, _ = service.ListEntries(ctx, "user1", models.EntryFilter{Types: []models.EntryType{models.EntryUsage}})
	if len(entries) != 0 {
		t.Errorf("Expected no usage entries, got %d", len(entries))
	}

	ids, err := service.ListUserIds(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "user1" {
		t.Errorf("Expected [user1], got %v (%v)", ids, err)
	}
}
