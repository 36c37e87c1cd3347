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

package database

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	// Credit Balances Table (Current State - Hot Data)
	`CREATE TABLE IF NOT EXISTS credit_balances (
		user_id TEXT PRIMARY KEY,
		current_credits INTEGER NOT NULL DEFAULT 0 CHECK (current_credits >= 0),
		updated_at TIMESTAMP NOT NULL
	)`,

	// Credit Entries Table (Audit Trail - Cold Data)
	`CREATE TABLE IF NOT EXISTS credit_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		remaining_amount INTEGER CHECK (remaining_amount IS NULL OR remaining_amount >= 0),
		description TEXT NOT NULL,
		payment_id TEXT,
		expiration_date TIMESTAMP,
		expiration_processed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_credit_entries_consume ON credit_entries(user_id, expiration_date, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_entries_type ON credit_entries(user_id, type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_entries_payment_id ON credit_entries(payment_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS credit_balances (
		user_id TEXT PRIMARY KEY,
		current_credits BIGINT NOT NULL DEFAULT 0 CHECK (current_credits >= 0),
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS credit_entries (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		remaining_amount BIGINT CHECK (remaining_amount IS NULL OR remaining_amount >= 0),
		description TEXT NOT NULL,
		payment_id TEXT,
		expiration_date TIMESTAMPTZ,
		expiration_processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_credit_entries_consume ON credit_entries(user_id, expiration_date, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_entries_type ON credit_entries(user_id, type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_entries_payment_id ON credit_entries(payment_id)`,
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect.name == DriverPostgres {
		schema = postgresSchema
	}

	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
