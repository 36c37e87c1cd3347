package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"
)

// txStore is the store.Tx view of one open database transaction.
type txStore struct {
	tx      *sql.Tx
	dialect dialect
}

var _ store.Tx = (*txStore)(nil)

func (t *txStore) LockBalance(ctx context.Context, userId string) (*models.Balance, error) {
	balance, err := scanBalance(t.tx.QueryRowContext(ctx, t.dialect.locking(queryGetBalance), userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	return balance, nil
}

func (t *txStore) EnsureBalance(ctx context.Context, userId string, now time.Time) (*models.Balance, error) {
	if _, err := t.tx.ExecContext(ctx, t.dialect.rebind(queryEnsureBalance), userId, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to create balance: %w", err)
	}
	return t.LockBalance(ctx, userId)
}

func (t *txStore) UpdateBalance(ctx context.Context, userId string, credits int64, now time.Time) error {
	if credits < 0 {
		return fmt.Errorf("balance for user %s would become negative (%d)", userId, credits)
	}

	result, err := t.tx.ExecContext(ctx, t.dialect.rebind(queryUpdateBalance), credits, now.UTC(), userId)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return expectOneRow(result, store.ErrBalanceNotFound)
}

func (t *txStore) LockSpendableEntries(ctx context.Context, userId string, now time.Time) ([]models.Entry, error) {
	return t.lockEntries(ctx, querySpendableEntries, userId, now)
}

func (t *txStore) LockExpiredEntries(ctx context.Context, userId string, now time.Time) ([]models.Entry, error) {
	return t.lockEntries(ctx, queryExpiredEntries, userId, now)
}

func (t *txStore) lockEntries(ctx context.Context, query, userId string, now time.Time) ([]models.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.locking(query), userId, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to lock entries: %w", err)
	}
	defer closeRows(rows)
	return scanEntries(rows)
}

func (t *txStore) UpdateRemaining(ctx context.Context, entryId string, remaining int64, now time.Time) error {
	if remaining < 0 {
		return fmt.Errorf("remaining amount for entry %s would become negative (%d)", entryId, remaining)
	}

	result, err := t.tx.ExecContext(ctx, t.dialect.rebind(queryUpdateRemaining), remaining, now.UTC(), entryId)
	if err != nil {
		return fmt.Errorf("failed to update remaining amount: %w", err)
	}
	return expectOneRow(result, store.ErrEntryNotFound)
}

func (t *txStore) MarkExpirationProcessed(ctx context.Context, entryId string, now time.Time) error {
	result, err := t.tx.ExecContext(ctx, t.dialect.rebind(queryMarkExpirationProcessed), now.UTC(), now.UTC(), entryId)
	if err != nil {
		return fmt.Errorf("failed to mark expiration processed: %w", err)
	}
	return expectOneRow(result, store.ErrEntryNotFound)
}

func (t *txStore) InsertEntry(ctx context.Context, entry *models.Entry) error {
	err := t.tx.QueryRowContext(ctx, t.dialect.rebind(queryInsertEntry),
		entry.Id, entry.UserId, string(entry.Type), entry.Amount, nullInt64(entry.RemainingAmount),
		entry.Description, nullString(entry.PaymentId), nullTime(entry.ExpirationDate),
		nullTime(entry.ExpirationProcessedAt), entry.CreatedAt.UTC(), entry.UpdatedAt.UTC()).
		Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (t *txStore) GetEntry(ctx context.Context, userId, entryId string) (*models.Entry, error) {
	return getEntry(ctx, t.tx, t.dialect, userId, entryId)
}

func (t *txStore) HasRefundReferencing(ctx context.Context, userId, originalId string) (bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, t.dialect.rebind(queryHasRefundReferencing), userId, likeSuffix(models.RefundMarker(originalId))).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for existing refund: %w", err)
	}
	return true, nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
