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

package common

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// UserLister is the part of the ledger service needed to enumerate users.
type UserLister interface {
	ListUserIds(ctx context.Context) ([]string, error)
}

// ResolveUsers returns the users a command-line utility should act on.
// If userFilter is provided, returns just that user.
// If userFilter is empty, returns every user with a balance row.
func ResolveUsers(ctx context.Context, lister UserLister, userFilter string) ([]string, error) {
	if userFilter != "" {
		zap.L().Info("Using single user", zap.String("user_id", userFilter))
		return []string{userFilter}, nil
	}

	users, err := lister.ListUserIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	zap.L().Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}
