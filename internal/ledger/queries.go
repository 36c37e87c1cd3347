package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credit-ledger-go/internal/metrics"
	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetBalance returns the user's cached balance, 0 when the user has none.
// Storage errors are returned unless FailOpenReads is set, in which case
// the read degrades to 0.
func (s *Service) GetBalance(ctx context.Context, userId string) (int64, error) {
	if userId == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidParameter)
	}

	balance, err := s.store.GetBalance(ctx, userId)
	if errors.Is(err, store.ErrBalanceNotFound) {
		return 0, nil
	}
	if err != nil {
		return s.degradedRead(userId, err)
	}
	return balance.CurrentCredits, nil
}

// HasSufficientBalance reports whether the user holds at least required credits.
func (s *Service) HasSufficientBalance(ctx context.Context, userId string, required int64) (bool, error) {
	if required <= 0 {
		return false, fmt.Errorf("%w: required amount must be positive, got %d", ErrInvalidParameter, required)
	}
	balance, err := s.GetBalance(ctx, userId)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

func (s *Service) degradedRead(userId string, err error) (int64, error) {
	if !s.cfg.FailOpenReads {
		zap.L().Error("Failed to get balance", zap.String("user_id", userId), zap.Error(err))
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	metrics.DegradedReads.Inc()
	zap.L().Warn("Balance read failed, reporting zero (fail-open reads enabled)",
		zap.String("user_id", userId),
		zap.Error(err))
	return 0, nil
}

// ListEntries returns the user's history newest first.
func (s *Service) ListEntries(ctx context.Context, userId string, filter models.EntryFilter) ([]models.Entry, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidParameter)
	}
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown entry type %q", ErrInvalidParameter, t)
		}
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidParameter)
	}
	filter.Limit = HistoryLimit(filter.Limit)

	entries, err := s.store.ListEntries(ctx, userId, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// HistoryLimit returns the page size ListEntries will actually use.
func HistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

// HasEntrySince reports whether the user received an entry of type t at or
// after since. Callers use it to grant period-based credits only once.
func (s *Service) HasEntrySince(ctx context.Context, userId string, t models.EntryType, since time.Time) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("%w: unknown entry type %q", ErrInvalidParameter, t)
	}
	entries, err := s.ListEntries(ctx, userId, models.EntryFilter{
		Types: []models.EntryType{t},
		Since: since,
		Limit: 1,
	})
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Reconcile compares the cached balance with the sum of outstanding
// remainders. A mismatch returns the report together with ErrBalanceDrift.
func (s *Service) Reconcile(ctx context.Context, userId string) (models.Reconciliation, error) {
	rec := models.Reconciliation{UserId: userId}
	if userId == "" {
		return rec, fmt.Errorf("%w: user id is required", ErrInvalidParameter)
	}

	balance, err := s.store.GetBalance(ctx, userId)
	switch {
	case errors.Is(err, store.ErrBalanceNotFound):
	case err != nil:
		return rec, fmt.Errorf("failed to get balance: %w", err)
	default:
		rec.CachedBalance = balance.CurrentCredits
	}

	rec.OutstandingSum, err = s.store.SumOutstanding(ctx, userId)
	if err != nil {
		return rec, fmt.Errorf("failed to sum outstanding credits: %w", err)
	}

	rec.Difference = rec.CachedBalance - rec.OutstandingSum
	rec.Consistent = rec.Difference == 0
	if !rec.Consistent {
		metrics.BalanceDrift.Inc()
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.Int64("cached_balance", rec.CachedBalance),
			zap.Int64("outstanding_sum", rec.OutstandingSum))
		return rec, fmt.Errorf("%w: cached %d, outstanding %d", ErrBalanceDrift, rec.CachedBalance, rec.OutstandingSum)
	}
	return rec, nil
}

// ListUserIds returns every user that has a balance row.
func (s *Service) ListUserIds(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListUserIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

// UsersWithExpiredCredits returns up to limit users holding expired,
// unprocessed remainders as of now.
func (s *Service) UsersWithExpiredCredits(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.store.ListUsersWithExpiredCredits(ctx, s.clock(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with expired credits: %w", err)
	}
	return ids, nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
