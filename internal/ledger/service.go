/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ledger implements the credit ledger: grants, FIFO-by-expiration
// consumption, refunds and expiration sweeps over an injected store.Store.
package ledger

import (
	"context"
	"time"

	"credit-ledger-go/internal/audit"
	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRefundWindow = 24 * time.Hour

// Service is the entry point for every balance-affecting operation. All
// mutations run inside one store unit of work; audit events are sent only
// after that unit has committed.
type Service struct {
	store    store.Store
	notifier audit.Notifier
	cfg      models.LedgerConfig
	now      func() time.Time
	newId    func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for tests that need to move time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIdGenerator replaces the uuid entry id generator.
func WithIdGenerator(fn func() string) Option {
	return func(s *Service) { s.newId = fn }
}

func NewService(st store.Store, notifier audit.Notifier, cfg models.LedgerConfig, opts ...Option) *Service {
	if notifier == nil {
		notifier = audit.NopSink{}
	}
	if cfg.RefundWindow <= 0 {
		cfg.RefundWindow = DefaultRefundWindow
	}

	s := &Service{
		store:    st,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		newId:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	zap.L().Debug("Ledger service created",
		zap.Duration("refund_window", cfg.RefundWindow),
		zap.Bool("fail_open_reads", cfg.FailOpenReads),
		zap.Bool("sweep_on_consume", cfg.SweepOnConsume))
	return s
}

// clock returns now in UTC at microsecond precision, the finest every
// backend stores.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// notify sends one post-commit audit event. It never fails the caller.
func (s *Service) notify(ctx context.Context, op audit.Operation, entry *models.Entry, metadata map[string]string) {
	if entry == nil {
		return
	}

	event := audit.Event{
		EntryId:     entry.Id,
		UserId:      entry.UserId,
		Amount:      entry.Amount,
		Operation:   op,
		EntryType:   entry.Type,
		Description: entry.Description,
		Metadata:    withRequestMetadata(ctx, metadata),
		OccurredAt:  entry.CreatedAt,
	}

	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("Audit notifier panicked",
				zap.String("entry_id", entry.Id),
				zap.Any("panic", p))
		}
	}()

	if err := s.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		zap.L().Warn("Failed to notify audit sink",
			zap.String("entry_id", entry.Id),
			zap.String("user_id", entry.UserId),
			zap.String("operation", string(op)),
			zap.Error(err))
	}
}

func withRequestMetadata(ctx context.Context, metadata map[string]string) map[string]string {
	rc := models.GetRequestContext(ctx)
	if rc == nil && len(metadata) == 0 {
		return nil
	}

	out := make(map[string]string, len(metadata)+3)
	for k, v := range metadata {
		out[k] = v
	}
	if rc != nil {
		if rc.RequestId != "" {
			out["request_id"] = rc.RequestId
		}
		if rc.Source != "" {
			out["source"] = rc.Source
		}
		if rc.Actor != "" {
			out["actor"] = rc.Actor
		}
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }
