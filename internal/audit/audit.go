// Package audit delivers post-commit notifications of ledger mutations to an
// external sink. Delivery is best-effort: nothing here can fail or delay a
// committed mutation.
package audit

import (
	"context"
	"errors"
	"time"

	"credit-ledger-go/internal/models"

	"go.uber.org/zap"
)

// Operation names the kind of mutation an event describes.
type Operation string

const (
	OpAdd     Operation = "add"
	OpConsume Operation = "consume"
	OpRefund  Operation = "refund"
	OpExpire  Operation = "expire"
)

var (
	ErrQueueFull        = errors.New("audit queue full")
	ErrDispatcherClosed = errors.New("audit dispatcher closed")
)

// Event is what the sink receives after every successful mutation.
type Event struct {
	EntryId     string            `json:"entry_id"`
	UserId      string            `json:"user_id"`
	Amount      int64             `json:"amount"`
	Operation   Operation         `json:"operation"`
	EntryType   models.EntryType  `json:"entry_type"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Notifier receives audit events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Notify(context.Context, Event) error { return nil }

// LogSink writes events to the structured log.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("entry_id", e.EntryId),
		zap.String("user_id", e.UserId),
		zap.Int64("amount", e.Amount),
		zap.String("operation", string(e.Operation)),
		zap.String("entry_type", e.EntryType.String()),
		zap.String("description", e.Description),
		zap.Time("occurred_at", e.OccurredAt),
	}
	if len(e.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", e.Metadata))
	}
	zap.L().Info("Ledger audit event", fields...)
	return nil
}
