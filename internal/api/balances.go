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

package api

import (
	"context"
	"fmt"

	"credit-ledger-go/internal/ledger"
	"credit-ledger-go/internal/models"

	"go.uber.org/zap"
)

// GetUserBalance returns the current credit balance for a user
func (s *LedgerService) GetUserBalance(ctx context.Context, userId string) (models.UserBalance, error) {
	if userId == "" {
		return models.UserBalance{}, fmt.Errorf("%w: user_id is required", ledger.ErrInvalidParameter)
	}

	credits, err := s.ledger.GetBalance(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get user balance",
			zap.String("user_id", userId),
			zap.Error(err))
		return models.UserBalance{}, err
	}

	return models.UserBalance{UserId: userId, Credits: credits}, nil
}

// GetEntryHistory returns paginated entry history for a user
func (s *LedgerService) GetEntryHistory(ctx context.Context, userId string, filter models.EntryFilter) ([]models.EntryRecord, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", ledger.ErrInvalidParameter)
	}

	entries, err := s.ledger.ListEntries(ctx, userId, filter)
	if err != nil {
		zap.L().Error("Failed to get entry history",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, err
	}

	result := make([]models.EntryRecord, len(entries))
	for i, e := range entries {
		result[i] = models.NewEntryRecord(e)
	}

	return result, nil
}
