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

// All queries use ? placeholders; dialect.rebind converts them for Postgres.
const (
	// Balance queries
	queryGetBalance = `
		SELECT user_id, current_credits, updated_at
		FROM credit_balances
		WHERE user_id = ?`

	queryEnsureBalance = `
		INSERT INTO credit_balances (user_id, current_credits, updated_at)
		VALUES (?, 0, ?)
		ON CONFLICT (user_id) DO NOTHING`

	queryUpdateBalance = `
		UPDATE credit_balances
		SET current_credits = ?, updated_at = ?
		WHERE user_id = ?`

	queryListUserIds = `
		SELECT user_id FROM credit_balances ORDER BY user_id`

	querySumOutstanding = `
		SELECT COALESCE(SUM(remaining_amount), 0)
		FROM credit_entries
		WHERE user_id = ? AND type NOT IN ('USAGE', 'EXPIRE') AND remaining_amount > 0`

	// Entry queries
	entryColumns = `
		seq, id, user_id, type, amount, remaining_amount, description, payment_id,
		expiration_date, expiration_processed_at, created_at, updated_at`

	queryInsertEntry = `
		INSERT INTO credit_entries (
			id, user_id, type, amount, remaining_amount, description, payment_id,
			expiration_date, expiration_processed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`

	queryGetEntry = `
		SELECT` + entryColumns + `
		FROM credit_entries
		WHERE user_id = ? AND id = ?`

	// Consumption order: soonest expiration first, never-expiring last,
	// then oldest, then insertion order.
	querySpendableEntries = `
		SELECT` + entryColumns + `
		FROM credit_entries
		WHERE user_id = ?
		  AND type NOT IN ('USAGE', 'EXPIRE')
		  AND remaining_amount > 0
		  AND (expiration_date IS NULL OR expiration_date > ?)
		ORDER BY (expiration_date IS NULL), expiration_date, created_at, seq`

	queryExpiredEntries = `
		SELECT` + entryColumns + `
		FROM credit_entries
		WHERE user_id = ?
		  AND type NOT IN ('USAGE', 'EXPIRE')
		  AND remaining_amount > 0
		  AND expiration_date IS NOT NULL
		  AND expiration_date < ?
		  AND expiration_processed_at IS NULL
		ORDER BY expiration_date, seq`

	queryUpdateRemaining = `
		UPDATE credit_entries
		SET remaining_amount = ?, updated_at = ?
		WHERE id = ? AND remaining_amount IS NOT NULL`

	queryMarkExpirationProcessed = `
		UPDATE credit_entries
		SET remaining_amount = 0, expiration_processed_at = ?, updated_at = ?
		WHERE id = ?`

	queryHasRefundReferencing = `
		SELECT id FROM credit_entries
		WHERE user_id = ? AND type = 'REFUND' AND description LIKE ? ESCAPE '\'
		LIMIT 1`

	queryUsersWithExpiredCredits = `
		SELECT DISTINCT user_id
		FROM credit_entries
		WHERE type NOT IN ('USAGE', 'EXPIRE')
		  AND remaining_amount > 0
		  AND expiration_date IS NOT NULL
		  AND expiration_date < ?
		  AND expiration_processed_at IS NULL
		ORDER BY user_id
		LIMIT ?`
)
