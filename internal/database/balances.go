package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetBalance returns the cached balance row (O(1) lookup)
func (s *Service) GetBalance(ctx context.Context, userId string) (*models.Balance, error) {
	zap.L().Debug("Getting balance", zap.String("user_id", userId))

	balance, err := scanBalance(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetBalance), userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBalanceNotFound
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// SumOutstanding adds up the remainders of every earn entry still holding credits
func (s *Service) SumOutstanding(ctx context.Context, userId string) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(querySumOutstanding), userId).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum outstanding credits: %w", err)
	}
	return sum, nil
}

// ListUserIds returns every user that has a balance row
func (s *Service) ListUserIds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserIds)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer closeRows(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return ids, nil
}

func scanBalance(row *sql.Row) (*models.Balance, error) {
	var b models.Balance
	if err := row.Scan(&b.UserId, &b.CurrentCredits, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
