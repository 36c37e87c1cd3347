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

// ConsumeCredits debits amount from the user, spending the entries closest
// to expiring first. Either the full amount is debited or nothing changes.
func (s *Service) ConsumeCredits(ctx context.Context, userId string, amount int64, description string) (usage *models.Entry, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("consume", resultLabel(err), started) }()

	switch {
	case userId == "":
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidParameter)
	case amount <= 0:
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidParameter, amount)
	case description == "":
		return nil, fmt.Errorf("%w: description is required", ErrInvalidParameter)
	}

	zap.L().Debug("Consuming credits",
		zap.String("user_id", userId),
		zap.Int64("amount", amount))

	now := s.clock()
	var swept *models.Entry
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		swept = nil

		balance, err := tx.LockBalance(ctx, userId)
		if errors.Is(err, store.ErrBalanceNotFound) {
			return fmt.Errorf("%w: balance 0, requested %d", ErrInsufficientCredits, amount)
		}
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		current := balance.CurrentCredits
		if s.cfg.SweepOnConsume {
			res, expireEntry, err := s.expireInTx(ctx, tx, balance, now)
			if err != nil {
				return err
			}
			if res.ExpiredCredits > 0 {
				current = balance.CurrentCredits - res.ExpiredCredits
				if current < 0 {
					current = 0
				}
				swept = expireEntry
			}
		}

		if current < amount {
			return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientCredits, current, amount)
		}

		entries, err := tx.LockSpendableEntries(ctx, userId, now)
		if err != nil {
			return fmt.Errorf("failed to lock spendable entries: %w", err)
		}

		plan, available := allocate(entries, amount)
		if available < amount {
			metrics.BalanceDrift.Inc()
			zap.L().Error("Spendable entries cannot cover balance",
				zap.String("user_id", userId),
				zap.Int64("balance", current),
				zap.Int64("spendable", available),
				zap.Int64("requested", amount))
			return fmt.Errorf("%w: %w: balance %d but only %d spendable",
				ErrInsufficientCredits, ErrBalanceDrift, current, available)
		}

		for _, d := range plan {
			if err := tx.UpdateRemaining(ctx, d.entryId, d.remaining, now); err != nil {
				return fmt.Errorf("failed to update entry remainder: %w", err)
			}
		}

		if err := tx.UpdateBalance(ctx, userId, current-amount, now); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		usage = &models.Entry{
			Id:          s.newId(),
			UserId:      userId,
			Type:        models.EntryUsage,
			Amount:      -amount,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertEntry(ctx, usage); err != nil {
			return fmt.Errorf("failed to insert usage entry: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) && !errors.Is(err, ErrBalanceDrift) {
			zap.L().Info("Insufficient credits",
				zap.String("user_id", userId),
				zap.Int64("amount", amount))
		} else {
			zap.L().Error("Failed to consume credits",
				zap.String("user_id", userId),
				zap.Int64("amount", amount),
				zap.Error(err))
		}
		return nil, err
	}

	metrics.Credits.WithLabelValues("consume").Add(float64(amount))
	if swept != nil {
		metrics.Credits.WithLabelValues("expire").Add(float64(-swept.Amount))
		s.notify(ctx, audit.OpExpire, swept, nil)
	}
	s.notify(ctx, audit.OpConsume, usage, nil)

	zap.L().Info("Credits consumed",
		zap.String("user_id", userId),
		zap.String("entry_id", usage.Id),
		zap.Int64("amount", amount))
	return usage, nil
}

type deduction struct {
	entryId   string
	remaining int64
}

// allocate walks entries in spending order and takes min(remaining, owed)
// from each until amount is covered. It returns the new remainders for the
// touched entries and the total spendable remainder seen.
func allocate(entries []models.Entry, amount int64) ([]deduction, int64) {
	var plan []deduction
	var available int64
	owed := amount

	for i := range entries {
		remaining := entries[i].Remaining()
		if remaining <= 0 {
			continue
		}
		available += remaining
		if owed == 0 {
			continue
		}
		take := min(remaining, owed)
		owed -= take
		plan = append(plan, deduction{entryId: entries[i].Id, remaining: remaining - take})
	}
	return plan, available
}
