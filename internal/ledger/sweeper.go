package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credit-ledger-go/internal/audit"
	"credit-ledger-go/internal/metrics"
	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"

	"go.uber.org/zap"
)

// SweepExpired finalizes every expired, unprocessed remainder of a user:
// the remainders are zeroed, the balance drops by their total and one
// EXPIRE entry records it. Running it again finds nothing to do.
func (s *Service) SweepExpired(ctx context.Context, userId string) (result models.SweepResult, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("expire", resultLabel(err), started) }()

	result.UserId = userId
	if userId == "" {
		return result, fmt.Errorf("%w: user id is required", ErrInvalidParameter)
	}

	now := s.clock()
	var expireEntry *models.Entry
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		balance, err := tx.LockBalance(ctx, userId)
		if errors.Is(err, store.ErrBalanceNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		result, expireEntry, err = s.expireInTx(ctx, tx, balance, now)
		return err
	})
	if err != nil {
		zap.L().Error("Failed to sweep expired credits",
			zap.String("user_id", userId),
			zap.Error(err))
		return models.SweepResult{UserId: userId}, err
	}

	if expireEntry == nil {
		zap.L().Debug("No expired credits to sweep", zap.String("user_id", userId))
		return result, nil
	}

	metrics.Credits.WithLabelValues("expire").Add(float64(result.ExpiredCredits))
	s.notify(ctx, audit.OpExpire, expireEntry, nil)

	zap.L().Info("Expired credits swept",
		zap.String("user_id", userId),
		zap.Int64("expired_credits", result.ExpiredCredits),
		zap.Int("entries_processed", result.EntriesProcessed))
	return result, nil
}

// expireInTx does the sweep inside an existing unit of work whose balance
// row is already locked. It writes the new balance and returns the EXPIRE
// entry, or nil when nothing had expired.
func (s *Service) expireInTx(ctx context.Context, tx store.Tx, balance *models.Balance, now time.Time) (models.SweepResult, *models.Entry, error) {
	result := models.SweepResult{UserId: balance.UserId}

	expired, err := tx.LockExpiredEntries(ctx, balance.UserId, now)
	if err != nil {
		return result, nil, fmt.Errorf("failed to lock expired entries: %w", err)
	}

	for i := range expired {
		result.ExpiredCredits += expired[i].Remaining()
		if err := tx.MarkExpirationProcessed(ctx, expired[i].Id, now); err != nil {
			return result, nil, fmt.Errorf("failed to mark entry %s expired: %w", expired[i].Id, err)
		}
		result.EntriesProcessed++
	}

	if result.ExpiredCredits == 0 {
		return result, nil, nil
	}

	newBalance := balance.CurrentCredits - result.ExpiredCredits
	if newBalance < 0 {
		metrics.BalanceDrift.Inc()
		zap.L().Warn("Expired credits exceed cached balance, clamping at zero",
			zap.String("user_id", balance.UserId),
			zap.Int64("balance", balance.CurrentCredits),
			zap.Int64("expired_credits", result.ExpiredCredits))
		newBalance = 0
	}
	if err := tx.UpdateBalance(ctx, balance.UserId, newBalance, now); err != nil {
		return result, nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := &models.Entry{
		Id:     s.newId(),
		UserId: balance.UserId,
		Type:   models.EntryExpire,
		Amount: -result.ExpiredCredits,
		Description: fmt.Sprintf("Expired %d credits from %d entries",
			result.ExpiredCredits, result.EntriesProcessed),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return result, nil, fmt.Errorf("failed to insert expire entry: %w", err)
	}

	result.ExpireEntryId = entry.Id
	return result, entry, nil
}
