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

// RefundCredits grants a REFUND entry. When an original transaction is
// named, the refund must come within the refund window of it and only one
// refund may ever reference it. Guards and grant share one unit of work,
// so two concurrent refunds of the same transaction cannot both pass.
func (s *Service) RefundCredits(ctx context.Context, params models.RefundParams) (entry *models.Entry, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("refund", resultLabel(err), started) }()

	switch {
	case params.UserId == "":
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidParameter)
	case params.Amount <= 0:
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidParameter, params.Amount)
	case params.Reason == "":
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidParameter)
	}

	zap.L().Info("Refunding credits",
		zap.String("user_id", params.UserId),
		zap.Int64("amount", params.Amount),
		zap.String("original_transaction_id", params.OriginalTransactionId))

	now := s.clock()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		balance, err := tx.EnsureBalance(ctx, params.UserId, now)
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		if params.OriginalTransactionId != "" {
			if err := s.checkRefundable(ctx, tx, params, now); err != nil {
				return err
			}
		}

		entry, _, err = s.creditInTx(ctx, tx, balance, creditRequest{
			amount:      params.Amount,
			entryType:   models.EntryRefund,
			description: refundDescription(params.Reason, params.OriginalTransactionId),
		}, now)
		return err
	})
	if err != nil {
		zap.L().Warn("Refund rejected",
			zap.String("user_id", params.UserId),
			zap.String("original_transaction_id", params.OriginalTransactionId),
			zap.Error(err))
		return nil, err
	}

	metrics.Credits.WithLabelValues("refund").Add(float64(params.Amount))

	meta := make(map[string]string, len(params.Metadata)+2)
	for k, v := range params.Metadata {
		meta[k] = v
	}
	meta["reason"] = params.Reason
	if params.OriginalTransactionId != "" {
		meta["original_transaction_id"] = params.OriginalTransactionId
	}
	s.notify(ctx, audit.OpRefund, entry, meta)

	zap.L().Info("Credits refunded",
		zap.String("user_id", params.UserId),
		zap.String("entry_id", entry.Id),
		zap.Int64("amount", params.Amount))
	return entry, nil
}

func (s *Service) checkRefundable(ctx context.Context, tx store.Tx, params models.RefundParams, now time.Time) error {
	original, err := tx.GetEntry(ctx, params.UserId, params.OriginalTransactionId)
	if errors.Is(err, store.ErrEntryNotFound) {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, params.OriginalTransactionId)
	}
	if err != nil {
		return fmt.Errorf("failed to load original transaction: %w", err)
	}

	if elapsed := now.Sub(original.CreatedAt); elapsed > s.cfg.RefundWindow {
		return fmt.Errorf("%w: transaction %s is %s old, window is %s",
			ErrRefundWindowExpired, original.Id, elapsed.Round(time.Minute), s.cfg.RefundWindow)
	}

	refunded, err := tx.HasRefundReferencing(ctx, params.UserId, params.OriginalTransactionId)
	if err != nil {
		return fmt.Errorf("failed to check existing refunds: %w", err)
	}
	if refunded {
		return fmt.Errorf("%w: transaction %s was already refunded", ErrDuplicateRefund, params.OriginalTransactionId)
	}
	return nil
}

// refundDescription embeds the original id so later refunds can find it.
func refundDescription(reason, originalId string) string {
	if originalId == "" {
		return "Refund: " + reason
	}
	return fmt.Sprintf("Refund: %s %s", reason, models.RefundMarker(originalId))
}
