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

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"credit-ledger-go/internal/metrics"
	"credit-ledger-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval    = time.Hour
	defaultBatchSize   = 100
	defaultConcurrency = 4
)

// Ledger is the part of the ledger service the sweeper drives.
type Ledger interface {
	UsersWithExpiredCredits(ctx context.Context, limit int) ([]string, error)
	SweepExpired(ctx context.Context, userId string) (models.SweepResult, error)
}

// RunSummary totals one pass over every user holding expired credits.
type RunSummary struct {
	Users          int
	Failed         int
	ExpiredCredits int64
}

// Sweeper periodically expires credits for every user that holds any.
type Sweeper struct {
	ledger      Ledger
	interval    time.Duration
	batchSize   int
	concurrency int

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewSweeper(l Ledger, cfg models.SchedulerConfig) *Sweeper {
	s := &Sweeper{
		ledger:      l,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	return s
}

// Start runs a pass immediately and then once per interval until Stop or
// ctx cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	zap.L().Info("Starting expiration sweeper",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
		zap.Int("concurrency", s.concurrency))

	ctx = models.WithRequestContext(ctx, &models.RequestContext{Source: "scheduler"})
	go s.loop(ctx)
}

// Stop signals the loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	zap.L().Info("Stopping expiration sweeper")
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.doneChan
	zap.L().Info("Expiration sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runLogged(ctx)

	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	summary, err := s.RunOnce(ctx)
	if err != nil {
		zap.L().Error("Expiration sweep pass failed", zap.Error(err))
		return
	}
	if summary.Users > 0 {
		zap.L().Info("Expiration sweep pass complete",
			zap.Int("users", summary.Users),
			zap.Int("failed", summary.Failed),
			zap.Int64("expired_credits", summary.ExpiredCredits))
	}
}

// RunOnce sweeps users in batches until no user with expired credits is
// left. A user whose sweep fails is skipped for the rest of the pass.
func (s *Sweeper) RunOnce(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	attempted := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		userIds, err := s.ledger.UsersWithExpiredCredits(ctx, s.batchSize+len(attempted))
		if err != nil {
			return summary, fmt.Errorf("failed to list users with expired credits: %w", err)
		}

		var batch []string
		for _, id := range userIds {
			if _, seen := attempted[id]; !seen {
				batch = append(batch, id)
				attempted[id] = struct{}{}
			}
			if len(batch) == s.batchSize {
				break
			}
		}
		if len(batch) == 0 {
			return summary, nil
		}

		expired, failed := s.sweepBatch(ctx, batch)
		summary.Users += len(batch)
		summary.Failed += failed
		summary.ExpiredCredits += expired
	}
}

func (s *Sweeper) sweepBatch(ctx context.Context, userIds []string) (int64, int) {
	var (
		expired atomic.Int64
		failed  atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, userId := range userIds {
		userId := userId
		g.Go(func() error {
			result, err := s.ledger.SweepExpired(gctx, userId)
			if err != nil {
				failed.Add(1)
				metrics.SweepUsers.WithLabelValues("error").Inc()
				zap.L().Error("Failed to sweep expired credits",
					zap.String("user_id", userId),
					zap.Error(err))
				return nil
			}
			expired.Add(result.ExpiredCredits)
			metrics.SweepUsers.WithLabelValues("ok").Inc()
			return nil
		})
	}

	_ = g.Wait()
	return expired.Load(), int(failed.Load())
}
