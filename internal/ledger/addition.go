package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"credit-ledger-go/internal/audit"
	"credit-ledger-go/internal/metrics"
	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"

	"go.uber.org/zap"
)

// AddCredits grants credits to a user and records an earn entry holding the
// full amount as its remainder.
func (s *Service) AddCredits(ctx context.Context, params models.AddCreditsParams) (entry *models.Entry, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("add", resultLabel(err), started) }()

	if err := validateAddParams(params); err != nil {
		return nil, err
	}

	zap.L().Info("Adding credits",
		zap.String("user_id", params.UserId),
		zap.Int64("amount", params.Amount),
		zap.String("type", params.Type.String()),
		zap.String("payment_id", params.PaymentId))

	now := s.clock()
	var expiration *time.Time
	if params.ExpireDays != nil && *params.ExpireDays > 0 {
		t := now.AddDate(0, 0, *params.ExpireDays)
		expiration = &t
	}

	var newBalance int64
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		balance, err := tx.EnsureBalance(ctx, params.UserId, now)
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		entry, newBalance, err = s.creditInTx(ctx, tx, balance, creditRequest{
			amount:      params.Amount,
			entryType:   params.Type,
			description: params.Description,
			paymentId:   params.PaymentId,
			expiration:  expiration,
		}, now)
		return err
	})
	if err != nil {
		zap.L().Error("Failed to add credits",
			zap.String("user_id", params.UserId),
			zap.Int64("amount", params.Amount),
			zap.Error(err))
		return nil, err
	}

	metrics.Credits.WithLabelValues("add").Add(float64(params.Amount))
	zap.L().Info("Credits added",
		zap.String("user_id", params.UserId),
		zap.String("entry_id", entry.Id),
		zap.Int64("balance", newBalance))

	s.notify(ctx, audit.OpAdd, entry, nil)
	return entry, nil
}

// MaxExpireDays is the longest expiry a grant may carry, the span a
// time.Duration can still represent.
const MaxExpireDays = int(math.MaxInt64 / int64(24*time.Hour))

type creditRequest struct {
	amount      int64
	entryType   models.EntryType
	description string
	paymentId   string
	expiration  *time.Time
}

// creditInTx increments a locked balance and inserts the matching earn entry.
func (s *Service) creditInTx(ctx context.Context, tx store.Tx, balance *models.Balance, req creditRequest, now time.Time) (*models.Entry, int64, error) {
	newBalance := balance.CurrentCredits + req.amount
	if err := tx.UpdateBalance(ctx, balance.UserId, newBalance, now); err != nil {
		return nil, 0, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := &models.Entry{
		Id:              s.newId(),
		UserId:          balance.UserId,
		Type:            req.entryType,
		Amount:          req.amount,
		RemainingAmount: int64Ptr(req.amount),
		Description:     req.description,
		PaymentId:       req.paymentId,
		ExpirationDate:  req.expiration,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	return entry, newBalance, nil
}

func validateAddParams(p models.AddCreditsParams) error {
	if p.UserId == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidParameter)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidParameter, p.Amount)
	}
	if p.Type == "" {
		return fmt.Errorf("%w: entry type is required", ErrInvalidParameter)
	}
	if !p.Type.IsEarn() {
		return fmt.Errorf("%w: %q is not a grant type", ErrInvalidParameter, p.Type)
	}
	if p.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidParameter)
	}
	if p.ExpireDays != nil && *p.ExpireDays < 0 {
		return fmt.Errorf("%w: expire days must not be negative, got %d", ErrInvalidParameter, *p.ExpireDays)
	}
	if p.ExpireDays != nil && *p.ExpireDays > MaxExpireDays {
		return fmt.Errorf("%w: expire days must be at most %d, got %d", ErrInvalidParameter, MaxExpireDays, *p.ExpireDays)
	}
	return nil
}
